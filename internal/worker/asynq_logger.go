package worker

import (
	"fmt"

	"go.uber.org/zap"
)

// asynqLogger adapts zap to asynq.Logger.
type asynqLogger struct {
	sugar *zap.SugaredLogger
}

func newAsynqLogger(logger *zap.Logger) asynqLogger {
	return asynqLogger{sugar: logger.Named("asynq").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l asynqLogger) Debug(args ...any) { l.sugar.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.sugar.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.sugar.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.sugar.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.sugar.Fatal(fmt.Sprint(args...)) }
