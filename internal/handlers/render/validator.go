package render

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Transaction types are stored as is and used as filters, so keep them machine friendly
var transactionTypeRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("txtype", validateTransactionType)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

// Return on 'TagName' json tag instead of struct name
// Look at documentation of 'RegisterTagNameFunc' for more details
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

func validateTransactionType(fl validator.FieldLevel) bool {
	return transactionTypeRe.MatchString(fl.Field().String())
}
