/*
 * Copyright 2025 The Luckliy Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package runtime provides stack capture for panics recovered inside interceptors,
// converters and pooled tasks.
//
// Usage example:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = runtime.NewPanicError(r)
//	    }
//	}()
package runtime

import (
	"fmt"
	"runtime"
	"strings"
)

// Stack 获取堆栈信息
func Stack() string {
	return stack(4)
}

func stack(skip int) string {
	var pc = make([]uintptr, 20)
	n := runtime.Callers(skip, pc)

	var build strings.Builder
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		build.WriteString(fmt.Sprintf(" %s:%d \n", frame.File, frame.Line))
		if !more {
			break
		}
	}
	return build.String()
}

// PanicError is a recovered panic with the stack where it happened.
type PanicError struct {
	Value any
	Stack string
}

// NewPanicError wraps a recovered value. Call it directly inside the deferred recover.
func NewPanicError(r any) *PanicError {
	return &PanicError{Value: r, Stack: stack(4)}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
