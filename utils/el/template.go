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

// Package el implements the `${...}` template language on top of expr-lang/expr.
//
// A template is one of:
//   - ExprTemplate: the whole text is a single `${expr}`, the result keeps its type
//   - MixedTemplate: text with embedded `${expr}` blocks, the result is a string
//   - NotTemplate: plain text returned as is
//
// `\${` escapes a literal `${`.
package el

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/lucklike/luckliy-sub000/utils/str"
)

type Template interface {
	// Execute evaluates the template. Programs run on a fresh VM, so a template
	// may be executed concurrently with different data.
	Execute(data map[string]any) (interface{}, error)
	// HasVar 是否有变量
	HasVar() bool
	// Source returns the original text.
	Source() string
}

// NewTemplate parses tmpl into the matching template kind.
func NewTemplate(tmpl string) (Template, error) {
	trimmed := strings.TrimSpace(tmpl)
	if strings.HasPrefix(trimmed, str.VarPrefix) {
		if end, err := matchBrace(trimmed, 1); err == nil && end == len(trimmed)-1 {
			if inner := strings.TrimSpace(trimmed[2:end]); inner != "" {
				t, err := NewExprTemplate(inner)
				if err != nil {
					return nil, err
				}
				t.source = tmpl
				return t, nil
			}
		}
	}
	segments, err := scan(tmpl)
	if err != nil {
		return nil, err
	}
	for _, s := range segments {
		if s.expr {
			return newMixedTemplate(tmpl, segments)
		}
	}
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteString(s.text)
	}
	return &NotTemplate{Tmpl: tmpl, text: sb.String()}, nil
}

type segment struct {
	text string
	expr bool
}

// scan splits text into literal and `${...}` segments. Braces nest and quotes
// inside an expression are honored, so `${{"a": "}"}}` is one expression.
func scan(text string) ([]segment, error) {
	var segments []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segments = append(segments, segment{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\\' && strings.HasPrefix(text[i+1:], str.VarPrefix) {
			lit.WriteString(str.VarPrefix)
			i += len(str.VarPrefix)
			continue
		}
		if c == '$' && i+1 < len(text) && text[i+1] == '{' {
			end, err := matchBrace(text, i+1)
			if err != nil {
				return nil, err
			}
			flush()
			inner := strings.TrimSpace(text[i+2 : end])
			if inner == "" {
				return nil, fmt.Errorf("empty expression at offset %d in %q", i, text)
			}
			segments = append(segments, segment{text: inner, expr: true})
			i = end
			continue
		}
		lit.WriteByte(c)
	}
	flush()
	return segments, nil
}

// matchBrace returns the index of the brace closing the one at open.
func matchBrace(text string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated expression in %q", text)
}

func compile(exprText string) (*vm.Program, error) {
	return expr.Compile(exprText, expr.AllowUndefinedVariables())
}

// ExprTemplate 模板变量支持 这种方式 ${xx},使用expr表达式计算
type ExprTemplate struct {
	Tmpl    string
	Program *vm.Program
	source  string
}

// NewExprTemplate compiles a bare expression, without the `${}` wrapper.
func NewExprTemplate(exprText string) (*ExprTemplate, error) {
	program, err := compile(exprText)
	if err != nil {
		return nil, err
	}
	return &ExprTemplate{Tmpl: exprText, Program: program}, nil
}

func (t *ExprTemplate) Execute(data map[string]any) (interface{}, error) {
	return expr.Run(t.Program, data)
}

func (t *ExprTemplate) HasVar() bool {
	return true
}

func (t *ExprTemplate) Source() string {
	if t.source != "" {
		return t.source
	}
	return str.VarPrefix + t.Tmpl + str.VarSuffix
}

// NotTemplate 原样输出
type NotTemplate struct {
	Tmpl string
	text string
}

func (t *NotTemplate) Execute(map[string]any) (interface{}, error) {
	return t.text, nil
}

func (t *NotTemplate) HasVar() bool {
	return false
}

func (t *NotTemplate) Source() string {
	return t.Tmpl
}

// MixedTemplate 支持混合字符串和变量的模板，格式如 aa/${xxx}
type MixedTemplate struct {
	Tmpl  string
	parts []mixedPart
}

type mixedPart struct {
	text    string
	program *vm.Program
}

func newMixedTemplate(tmpl string, segments []segment) (*MixedTemplate, error) {
	t := &MixedTemplate{Tmpl: tmpl}
	for _, s := range segments {
		if !s.expr {
			t.parts = append(t.parts, mixedPart{text: s.text})
			continue
		}
		program, err := compile(s.text)
		if err != nil {
			return nil, err
		}
		t.parts = append(t.parts, mixedPart{text: s.text, program: program})
	}
	return t, nil
}

// NewMixedTemplate parses a template that always renders to a string.
func NewMixedTemplate(tmpl string) (*MixedTemplate, error) {
	segments, err := scan(tmpl)
	if err != nil {
		return nil, err
	}
	return newMixedTemplate(tmpl, segments)
}

func (t *MixedTemplate) Execute(data map[string]any) (interface{}, error) {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.program == nil {
			sb.WriteString(p.text)
			continue
		}
		val, err := expr.Run(p.program, data)
		if err != nil {
			return nil, err
		}
		sb.WriteString(str.ToString(val))
	}
	return sb.String(), nil
}

func (t *MixedTemplate) HasVar() bool {
	for _, p := range t.parts {
		if p.program != nil {
			return true
		}
	}
	return false
}

func (t *MixedTemplate) Source() string {
	return t.Tmpl
}

// ExecuteAsString renders the template, ignoring errors.
func (t *MixedTemplate) ExecuteAsString(data map[string]any) string {
	val, _ := t.Execute(data)
	return str.ToString(val)
}
