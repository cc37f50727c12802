package labreport

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("pdfname", validatePDFName); err != nil {
		panic(fmt.Sprintf("register pdfname validation: %v", err))
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"form", "yaml"} {
			name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
}

func validatePDFName(fl validator.FieldLevel) bool {
	return strings.HasSuffix(strings.ToLower(fl.Field().String()), ".pdf")
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "pdfname":
			parts = append(parts, fmt.Sprintf("%s must be a .pdf file", fe.Field()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
