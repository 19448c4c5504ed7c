package utils

import (
	"errors"
	"testing"
)

var errConnectionRefused = errors.New("connection refused")

var logAndReturnErrorTests = []struct {
	msg            string
	err            error
	expectedOutput string
}{
	{"Unable to connect to redis", errConnectionRefused, "Unable to connect to redis: connection refused"},
	{"Unable to connect to redis", nil, "Unable to connect to redis"},
}

func TestLogAndReturnError(t *testing.T) {
	for _, testCase := range logAndReturnErrorTests {
		result := LogAndReturnError(testCase.msg, testCase.err)

		if result.Error() != testCase.expectedOutput {
			t.Errorf("LogAndReturnError(%v) failed! Wanted: %v, got: %v", testCase.msg, testCase.expectedOutput, result.Error())
		}
		if testCase.err != nil && !errors.Is(result, testCase.err) {
			t.Errorf("LogAndReturnError(%v) failed! Wanted the cause to be kept", testCase.msg)
		}
	}
}
