package serialport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLineReaderFramesAcrossPartialWrites(t *testing.T) {
	master, slave, err := openTestPTYPair()
	if err != nil {
		t.Skipf("no pty support in this environment: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	lr := NewLineReader(master, 256)

	go func() {
		slave.Write([]byte("ok\r\n"))
		slave.Write([]byte("<Idle|MPos:0.000,0.00"))
		slave.Write([]byte("0,0.000|FS:0,0>\r\n"))
	}()

	line, err := lr.Next(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "ok", string(line))

	line, err = lr.Next(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "<Idle|MPos:0.000,0.000,0.000|FS:0,0>", string(line))
}

func TestWriteLineTimeout(t *testing.T) {
	master, slave, err := openTestPTYPair()
	if err != nil {
		t.Skipf("no pty support in this environment: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	err = master.WriteLine([]byte("G1 X1\n"), time.Second)
	require.NoError(t, err)
}
