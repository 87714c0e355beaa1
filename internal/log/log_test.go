package log_test

import (
	"testing"

	"github.com/ignatij/shopfloor/internal/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	defer log.Configure("", "")

	tests := []struct {
		level, format string
		wantLevel     logrus.Level
		wantJSON      bool
	}{
		{"DEBUG", "", logrus.DebugLevel, false},
		{"warn", "json", logrus.WarnLevel, true},
		{"ERROR", "text", logrus.ErrorLevel, false},
		{"bogus", "bogus", logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			log.Configure(tt.level, tt.format)
			assert.Equal(t, tt.wantLevel, log.GetLogger().GetLevel())
			_, isJSON := log.GetLogger().Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}
