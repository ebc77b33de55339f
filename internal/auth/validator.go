package auth

import (
	"regexp"
	"strings"
)

type Field string

const (
	FieldEmail           Field = "email"
	FieldPassword        Field = "password"
	FieldUsername        Field = "username"
	FieldConfirmPassword Field = "confirmPassword"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	passwordCharset = regexp.MustCompile(`^[A-Za-z\d@$!%*#?&]{8,}$`)
	hasLetter       = regexp.MustCompile(`[A-Za-z]`)
	hasDigit        = regexp.MustCompile(`\d`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
)

type fieldMessages struct {
	required string
	invalid  string
}

var messages = map[string]map[Field]fieldMessages{
	"en": {
		FieldEmail:           {"Email is required", "Please enter a valid email address"},
		FieldPassword:        {"Password is required", "Password must be at least 8 characters and contain letters and numbers"},
		FieldUsername:        {"Username is required", "Username must be 3-20 characters and can contain letters, numbers, and underscores"},
		FieldConfirmPassword: {"Please confirm your password", "Passwords do not match"},
	},
	"ar": {
		FieldEmail:           {"البريد الإلكتروني مطلوب", "يرجى إدخال عنوان بريد إلكتروني صحيح"},
		FieldPassword:        {"كلمة المرور مطلوبة", "يجب أن تتكون كلمة المرور من 8 أحرف على الأقل وتحتوي على أحرف وأرقام"},
		FieldUsername:        {"اسم المستخدم مطلوب", "يجب أن يتكون اسم المستخدم من 3-20 حرفًا ويمكن أن يحتوي على أحرف وأرقام وشرطات سفلية"},
		FieldConfirmPassword: {"يرجى تأكيد كلمة المرور", "كلمات المرور غير متطابقة"},
	},
}

// FieldError is a localized validation failure for one form field.
type FieldError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return string(e.Field) + ": " + e.Message
}

// Validator checks auth form input. Unknown languages fall back to English.
type Validator struct {
	lang string
}

func NewValidator(lang string) Validator {
	if _, ok := messages[lang]; !ok {
		lang = "en"
	}
	return Validator{lang: lang}
}

// Field validates a single required value; ok is false with a localized
// message when the value is empty or malformed.
func (v Validator) Field(field Field, value string) (FieldError, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return v.fail(field, true), false
	}
	if !matches(field, value) {
		return v.fail(field, false), false
	}
	return FieldError{}, true
}

// Confirm validates the confirm-password field against the password.
func (v Validator) Confirm(password, confirm string) (FieldError, bool) {
	if strings.TrimSpace(confirm) == "" {
		return v.fail(FieldConfirmPassword, true), false
	}
	if confirm != password {
		return v.fail(FieldConfirmPassword, false), false
	}
	return FieldError{}, true
}

func (v Validator) SignIn(email, password string) []FieldError {
	return v.collect(
		check{FieldEmail, email},
		check{FieldPassword, password},
	)
}

// SignUp validates the registration form. Username and confirmation are
// optional and only checked when present.
func (v Validator) SignUp(email, password, confirm, username string) []FieldError {
	errs := v.collect(
		check{FieldEmail, email},
		check{FieldPassword, password},
	)
	if confirm != "" {
		if fe, ok := v.Confirm(password, confirm); !ok {
			errs = append(errs, fe)
		}
	}
	if strings.TrimSpace(username) != "" {
		if fe, ok := v.Field(FieldUsername, username); !ok {
			errs = append(errs, fe)
		}
	}
	return errs
}

type check struct {
	field Field
	value string
}

func (v Validator) collect(checks ...check) []FieldError {
	var errs []FieldError
	for _, c := range checks {
		if fe, ok := v.Field(c.field, c.value); !ok {
			errs = append(errs, fe)
		}
	}
	return errs
}

func (v Validator) fail(field Field, required bool) FieldError {
	m := messages[v.lang][field]
	if required {
		return FieldError{Field: field, Message: m.required}
	}
	return FieldError{Field: field, Message: m.invalid}
}

func matches(field Field, value string) bool {
	switch field {
	case FieldEmail:
		return emailPattern.MatchString(value)
	case FieldPassword:
		// RE2 has no lookahead, so letter and digit presence are checked separately.
		return passwordCharset.MatchString(value) && hasLetter.MatchString(value) && hasDigit.MatchString(value)
	case FieldUsername:
		return usernamePattern.MatchString(value)
	default:
		return true
	}
}
