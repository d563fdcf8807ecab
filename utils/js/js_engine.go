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

// Package js runs JavaScript conversion functions with goja.
//
// A GojaJsEngine compiles one script once and keeps a pool of VMs that have
// already run it, so calling a function defined by the script costs one VM
// checkout. Global properties are visible as `global`, and user functions from
// Config.Udf and funcs.UdfMap are installed in every VM.
package js

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/lucklike/luckliy-sub000/api/types"
	"github.com/lucklike/luckliy-sub000/builtin/funcs"
)

const (
	// GlobalKey global properties key,call them through the global.xx method
	GlobalKey = "global"
)

var errInterrupted = errors.New("script interrupted")

// GojaJsEngine goja js engine
type GojaJsEngine struct {
	vmPool            sync.Pool
	config            types.Config
	jsScript          *goja.Program
	jsUdfProgramCache map[string]*goja.Program
}

// NewGojaJsEngine compiles jsScript and the string UDFs of config.
// fromVars are set on every VM before the script runs.
func NewGojaJsEngine(config types.Config, jsScript string, fromVars map[string]interface{}) (*GojaJsEngine, error) {
	program, err := goja.Compile("", jsScript, true)
	if err != nil {
		return nil, err
	}
	jsEngine := &GojaJsEngine{
		config:   config,
		jsScript: program,
	}
	if err = jsEngine.PreCompileJs(config); err != nil {
		return nil, err
	}
	// the first VM surfaces script errors at construction time
	vm, err := jsEngine.NewVm(config, fromVars)
	if err != nil {
		return nil, err
	}
	jsEngine.vmPool = sync.Pool{
		New: func() interface{} {
			vm, err := jsEngine.NewVm(config, fromVars)
			if err != nil {
				config.Logger.Printf("js vm error: %s", err.Error())
			}
			return vm
		},
	}
	jsEngine.vmPool.Put(vm)
	return jsEngine, nil
}

// PreCompileJs Precompiled UDF JavaScript file
func (g *GojaJsEngine) PreCompileJs(config types.Config) error {
	var jsUdfProgramCache = make(map[string]*goja.Program)
	for k, v := range config.Udf {
		if jsFuncStr, ok := v.(string); ok {
			p, err := goja.Compile(k, jsFuncStr, true)
			if err != nil {
				return fmt.Errorf("compile udf %s: %w", k, err)
			}
			jsUdfProgramCache[k] = p
		}
	}
	g.jsUdfProgramCache = jsUdfProgramCache
	return nil
}

// NewVm creates a VM with globals and UDFs installed and the main script run.
func (g *GojaJsEngine) NewVm(config types.Config, fromVars map[string]interface{}) (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	for k, v := range fromVars {
		if err := vm.Set(k, v); err != nil {
			config.Logger.Printf("set fromVar %s error: %s", k, err.Error())
		}
	}
	if len(config.Properties) != 0 {
		if err := vm.Set(GlobalKey, config.Properties); err != nil {
			config.Logger.Printf("set global properties error: %s", err.Error())
		}
	}
	for k, v := range funcs.UdfMap.GetAll() {
		if err := vm.Set(k, v); err != nil {
			config.Logger.Printf("set udf %s error: %s", k, err.Error())
		}
	}
	for k, v := range config.Udf {
		var err error
		if _, ok := v.(string); ok {
			if p, exists := g.jsUdfProgramCache[k]; exists {
				_, err = vm.RunProgram(p)
			}
		} else {
			err = vm.Set(k, v)
		}
		if err != nil {
			config.Logger.Printf("parse js script=%s error: %s", k, err.Error())
		}
	}

	timer := g.startTimeout(vm)
	_, err := vm.RunProgram(g.jsScript)
	g.stopTimeout(vm, timer)
	return vm, err
}

// Execute calls functionName with argumentList and exports the result.
// Cancelling ctx or exceeding ScriptMaxExecutionTime interrupts the script.
func (g *GojaJsEngine) Execute(ctx context.Context, functionName string, argumentList ...interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()

	vm, _ := g.vmPool.Get().(*goja.Runtime)
	if vm == nil {
		return nil, errors.New("js vm unavailable")
	}
	var timer *time.Timer
	if g.config.ScriptMaxExecutionTime > 0 {
		timer = g.startTimeout(vm)
	}
	stop := func() bool { return false }
	if ctx != nil && ctx.Done() != nil {
		stop = context.AfterFunc(ctx, func() {
			vm.Interrupt(errInterrupted)
		})
	}
	defer func() {
		stop()
		g.stopTimeout(vm, timer)
		g.vmPool.Put(vm)
	}()

	f, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return nil, errors.New(functionName + " is not a function")
	}

	var params []goja.Value
	if len(argumentList) > 0 {
		params = make([]goja.Value, len(argumentList))
		for i, v := range argumentList {
			params[i] = vm.ToValue(v)
		}
	}

	res, err := f(goja.Undefined(), params...)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return res.Export(), nil
}

func (g *GojaJsEngine) Stop() {
}

// startTimeout interrupts vm after ScriptMaxExecutionTime. Nil if not configured.
func (g *GojaJsEngine) startTimeout(vm *goja.Runtime) *time.Timer {
	if g.config.ScriptMaxExecutionTime <= 0 {
		return nil
	}
	return time.AfterFunc(g.config.ScriptMaxExecutionTime, func() {
		vm.Interrupt("execution timeout")
	})
}

// stopTimeout stops the timer and clears a pending interrupt so the VM can be reused.
func (g *GojaJsEngine) stopTimeout(vm *goja.Runtime, timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
	vm.ClearInterrupt()
}
