package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var dniPattern = regexp.MustCompile(`^[0-9]{8}[A-Z]$`)

// IsValidDNI 8 位数字 + 1 位字母（已大写）
func IsValidDNI(code string) bool {
	return dniPattern.MatchString(code)
}

// NormalizeCode 去掉首尾空白并转大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	// 与 gin 的 binding 标签保持一致，服务层复用同一套规则
	v.SetTagName("binding")
	return v
}

// ValidateStruct 使用 binding 标签校验结构体，失败时返回 ValidationError
func ValidateStruct(s interface{}) error {
	if err := structValidator.Struct(s); err != nil {
		return NewValidationError(ValidationMessage(err))
	}
	return nil
}

// ValidationMessage 把 validator / JSON 解码错误转换为可读信息
func ValidationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fieldMessage(fe))
		}
		return strings.Join(msgs, "; ")
	}
	return "invalid request body: " + err.Error()
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "len":
		return fmt.Sprintf("%s must have length %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on %s", field, fe.Tag())
	}
}
