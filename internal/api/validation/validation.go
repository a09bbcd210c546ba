package validation

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var registerOnce sync.Once

// Register 向 gin 的绑定引擎注册自定义校验规则
// isodate: 严格的 YYYY-MM-DD 日期
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("isodate", isoDate)
	})
}

func isoDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != len(dateLayout) {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
