package perflog

import (
	"sync"

	"github.com/Station-Manager/errors"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate
var once sync.Once

func initValidator() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		_, err := parseLevel(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("format", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case FormatLine, FormatStructured:
			return true
		}
		return false
	})
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		s := sl.Current().Interface().(SinkSpec)
		if s.Enabled && s.MaxBytes <= 0 {
			sl.ReportError(s.MaxBytes, "MaxBytes", "MaxBytes", "gt_when_enabled", "")
		}
	}, SinkSpec{})
}

func validateConfig(cfg *Config) error {
	const op errors.Op = "perflog.validateConfig"
	if cfg == nil {
		return errors.New(op).Msg(errMsgNilConfig)
	}

	once.Do(initValidator)

	if err := validate.Struct(cfg); err != nil {
		return errors.New(op).Err(err).Msg(errMsgConfigInvalid + " " + err.Error())
	}

	for _, name := range cfg.RootSinks {
		if _, ok := cfg.Sinks[name]; !ok {
			return errors.New(op).Msg(errMsgUnknownSink + " " + name)
		}
	}
	for _, l := range cfg.Loggers {
		for _, name := range l.Sinks {
			if _, ok := cfg.Sinks[name]; !ok {
				return errors.New(op).Msg(errMsgUnknownSink + " " + name)
			}
		}
	}
	return nil
}
