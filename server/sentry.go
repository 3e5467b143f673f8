package server

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	raven "github.com/getsentry/raven-go"
	"github.com/sirupsen/logrus"
)

// sentryHook forwards warnings and errors logged through logrus to sentry.
type sentryHook struct{}

func (sentryHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (sentryHook) Fire(e *logrus.Entry) error {
	err, ok := e.Data[logrus.ErrorKey].(error)
	if !ok {
		err = fmt.Errorf("alert: %s", e.Message)
	}
	packet := raven.NewPacket(
		e.Message,
		raven.NewException(err, raven.NewStacktrace(2, 3, nil)),
	)
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel:
		packet.Level = raven.FATAL

	case logrus.ErrorLevel:
		packet.Level = raven.ERROR

	case logrus.WarnLevel:
		packet.Level = raven.WARNING
	}

	tags := map[string]string{}
	for k, v := range e.Data {
		if k == logrus.ErrorKey {
			continue
		}
		tags[k] = fmt.Sprint(v)
	}
	raven.Capture(packet, tags)
	return nil
}

// CapturePanic middleware reports panics to sentry.
func CapturePanic() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rval := recover(); rval != nil {
					if rval == http.ErrAbortHandler {
						panic(rval)
					}
					debug.PrintStack()
					rvalStr := fmt.Sprint(rval)
					packet := raven.NewPacket(rvalStr, raven.NewException(errors.New(rvalStr), raven.NewStacktrace(2, 3, nil)), raven.NewHttp(r))
					raven.Capture(packet, nil)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
