package checkout

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/solar-symphony/internal/common"
)

// DOBLayout is the accepted date-of-birth format.
const DOBLayout = "2006-01-02"

// MinimumAge is the youngest age allowed to purchase.
const MinimumAge = 18

var trnPattern = regexp.MustCompile(`^\d{9}$`)

// NewValidator returns a validator with the checkout tags registered. now
// supplies the clock used by the adult check.
func NewValidator(now func() time.Time) *validator.Validate {
	if now == nil {
		now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("trn", func(fl validator.FieldLevel) bool {
		return trnPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("adult", func(fl validator.FieldLevel) bool {
		dob, err := time.Parse(DOBLayout, fl.Field().String())
		if err != nil {
			return false
		}
		return AgeOn(dob, now()) >= MinimumAge
	})
	return v
}

// AgeOn returns completed years between dob and at.
func AgeOn(dob, at time.Time) int {
	age := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		age--
	}
	return age
}

var fieldMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"trn":      "must be a 9-digit TRN",
	"adult":    "you must be at least 18 years old to make a purchase",
}

// validationError converts validator output into a VALIDATION_ERROR AppError
// with one message per field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		details[fe.Field()] = msg
	}
	return common.ValidationError("please fill in all required fields correctly", details)
}
