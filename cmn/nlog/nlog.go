// Package nlog - cfnagg logger, provides buffering, timestamping, writing, and flushing
/*
 * Copyright (c) 2024-2025, CFN-Agg Authors. All rights reserved.
 */
package nlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const flushEvery = 10 * time.Second

var sevChar = [...]byte{'I', 'W', 'E'}

type nlog struct {
	file  *os.File
	bw    *bufio.Writer
	last  time.Time
	erred bool
	mw    sync.Mutex
}

var (
	logDir       string
	role         string
	toStderr     = true // until SetLogDir
	alsoToStderr bool

	out  = &nlog{}
	once sync.Once
)

// SetLogDir redirects logging from stderr into <dir>/<role>.log.
// Called once at startup, before the simulation begins.
func SetLogDir(dir, arole string) { logDir, role = dir, arole }

func AlsoToStderr(v bool) { alsoToStderr = v }

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

func initFile() {
	if logDir == "" {
		return
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "nlog:", err)
		return
	}
	fqn := filepath.Join(logDir, role+".log")
	file, err := os.OpenFile(fqn, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nlog:", err)
		return
	}
	out.file = file
	out.bw = bufio.NewWriterSize(file, 64*1024)
	out.last = time.Now()
	toStderr = false
}

func log(sev severity, depth int, format string, args ...any) {
	once.Do(initFile)

	line := sprintf(sev, depth, format, args...)
	if toStderr || alsoToStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}
	if toStderr {
		return
	}
	out.mw.Lock()
	out.bw.WriteString(line)
	if sev >= sevErr || time.Since(out.last) > flushEvery {
		out.bw.Flush()
		out.last = time.Now()
	}
	out.mw.Unlock()
}

// Flush drains the buffer; Flush(true) also syncs and closes the file (exit path).
func Flush(exit ...bool) {
	ex := len(exit) > 0 && exit[0]
	out.mw.Lock()
	defer out.mw.Unlock()
	if out.bw == nil {
		return
	}
	out.bw.Flush()
	if ex {
		out.file.Sync()
		out.file.Close()
		out.bw = nil
		toStderr = true
	}
}

func sprintf(sev severity, depth int, format string, args ...any) string {
	var sb strings.Builder
	sb.WriteByte(sevChar[sev])
	sb.WriteByte(' ')
	sb.WriteString(time.Now().Format("15:04:05.000000"))
	sb.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(3 + depth); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx > 0 {
			fn = fn[idx+1:]
		}
		fn = strings.TrimSuffix(fn, ".go")
		sb.WriteString(fn)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(ln))
		sb.WriteByte(' ')
	}
	var s string
	if format == "" {
		s = fmt.Sprintln(args...)
	} else {
		s = fmt.Sprintf(format, args...)
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
	}
	sb.WriteString(s)
	return sb.String()
}
