package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"

	"counterdrone-sim/internal/broadcast"
)

// FileObserver records the broadcast stream to JSONL files. Every message
// goes to the stream file, which ReplayLog can play back; alerts are
// additionally written to the optional alerts file.
type FileObserver struct {
	streamFile *os.File
	alertFile  *os.File
	streamBuf  *bufio.Writer
	streamEnc  *json.Encoder
	alertEnc   *json.Encoder
}

// NewFileObserver creates a FileObserver. alertsPath may be empty to skip the alert log.
func NewFileObserver(streamPath, alertsPath string) (*FileObserver, error) {
	sf, err := os.Create(streamPath)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(sf)
	fw := &FileObserver{streamFile: sf, streamBuf: buf, streamEnc: json.NewEncoder(buf)}
	if alertsPath != "" {
		af, err := os.Create(alertsPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.alertFile = af
		fw.alertEnc = json.NewEncoder(af)
	}
	return fw, nil
}

// Name implements broadcast.Named.
func (f *FileObserver) Name() string { return "file" }

// Send appends one message. Snapshots are flushed so a crash loses at most
// the current tick.
func (f *FileObserver) Send(_ context.Context, msg broadcast.Message) error {
	if err := f.streamEnc.Encode(msg); err != nil {
		return err
	}
	if msg.Type == broadcast.TypeAlert && f.alertEnc != nil {
		if err := f.alertEnc.Encode(msg.Alert); err != nil {
			return err
		}
	}
	if msg.Type == broadcast.TypeDrones {
		return f.streamBuf.Flush()
	}
	return nil
}

// Close flushes and closes the underlying files.
func (f *FileObserver) Close() error {
	var err error
	if f.streamBuf != nil {
		if e := f.streamBuf.Flush(); e != nil {
			err = e
		}
	}
	if f.streamFile != nil {
		if e := f.streamFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.alertFile != nil {
		if e := f.alertFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
