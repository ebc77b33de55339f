package cart

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// lineItemRecord is the persisted shape: a JSON array of
// {"id","name","price","image","quantity"} with price as a JSON number.
type lineItemRecord struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Image    string      `json:"image"`
	Quantity int         `json:"quantity"`
}

func encodeItems(items []LineItem) (string, error) {
	records := make([]lineItemRecord, len(items))
	for i, it := range items {
		records[i] = lineItemRecord{
			ID:       it.ID,
			Name:     it.Name,
			Price:    json.Number(it.Price.String()),
			Image:    it.Image,
			Quantity: it.Quantity,
		}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal cart failed: %w", err)
	}
	return string(b), nil
}

// decodeItems parses persisted items. Only a payload that is not a JSON array
// is an error; individual entries that cannot be used are dropped and
// duplicate ids are merged so the result always has unique ids.
func decodeItems(raw string) ([]LineItem, int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, 0, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, 0, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	items := make([]LineItem, 0, len(entries))
	dropped := 0
	for _, entry := range entries {
		var rec lineItemRecord
		if err := json.Unmarshal(entry, &rec); err != nil || rec.ID == "" || rec.Quantity < 1 {
			dropped++
			continue
		}
		price := decimal.Zero
		if rec.Price != "" {
			p, err := decimal.NewFromString(rec.Price.String())
			if err == nil && !p.IsNegative() {
				price = p
			}
		}
		if i := indexOf(items, rec.ID); i >= 0 {
			items[i].Quantity += rec.Quantity
			continue
		}
		items = append(items, LineItem{
			ID:       rec.ID,
			Name:     rec.Name,
			Price:    price,
			Image:    rec.Image,
			Quantity: rec.Quantity,
		})
	}
	return items, dropped, nil
}

func indexOf(items []LineItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
