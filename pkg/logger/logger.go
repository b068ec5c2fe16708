package logger

import (
	"io"
	"log"
	"os"
)

var (
	InfoLog  *log.Logger
	ErrorLog *log.Logger
	WarnLog  *log.Logger
	DebugLog *log.Logger
	logFile  *os.File
	level    = INFO
)

const (
	INFO = iota
	DEBUG
)

// InitLogger initializes the logger with a file output and console output.
// An empty filename logs to the console only.
func InitLogger(filename string, lvl int) error {
	level = lvl
	if filename == "" {
		Init()
		return nil
	}

	var err error
	logFile, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	setOutput(io.MultiWriter(os.Stderr, logFile))
	return nil
}

// SetOutput redirects every level to w.
func SetOutput(w io.Writer) {
	setOutput(w)
}

func setOutput(w io.Writer) {
	InfoLog = log.New(w, "INFO: ", log.Ldate|log.Ltime)
	ErrorLog = log.New(w, "ERROR: ", log.Ldate|log.Ltime)
	WarnLog = log.New(w, "WARN: ", log.Ldate|log.Ltime)
	DebugLog = log.New(w, "DEBUG: ", log.Ldate|log.Ltime)
}

func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func Init() {
	setOutput(os.Stderr)
}

func Infof(format string, v ...interface{}) {
	if InfoLog == nil {
		Init()
	}
	InfoLog.Printf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	if ErrorLog == nil {
		Init()
	}
	ErrorLog.Printf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	if WarnLog == nil {
		Init()
	}
	WarnLog.Printf(format, v...)
}

// Debugf only writes when the logger was initialized at DEBUG level.
func Debugf(format string, v ...interface{}) {
	if level < DEBUG {
		return
	}
	if DebugLog == nil {
		Init()
	}
	DebugLog.Printf(format, v...)
}
