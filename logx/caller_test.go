package logx

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCallerF0() caller {
	return getCaller(1)
}

func testCallerF1() caller {
	return testCallerF0()
}

func TestGetCaller(t *testing.T) {
	c := testCallerF1()
	assert.Equal(t, "testCallerF1", c.funcName)
	assert.Equal(t, "logx/caller_test.go", c.file)
}

func TestTrimFilePath(t *testing.T) {
	_, file, _, _ := runtime.Caller(0)
	assert.Equal(t, "logx/caller_test.go", trimFilePath(file))
	assert.Equal(t, "", trimFilePath(""))
}

func TestTrimFuncName(t *testing.T) {
	assert.Equal(t, "Info", trimFuncName("github.com/imattdu/orbit-apm/logx.Info"))
	assert.Equal(t, "(*Worker).loop", trimFuncName("github.com/imattdu/orbit-apm/transport.(*Worker).loop"))
	assert.Equal(t, "main", trimFuncName("main.main"))
}
