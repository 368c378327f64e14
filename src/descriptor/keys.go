package descriptor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Annotation keys recognised on the docker configuration block.
const (
	KeyName           = "name"
	KeyRegistry       = "registry"
	KeyTag            = "tag"
	KeyUsername       = "username"
	KeyPassword       = "password"
	KeyBaseImage      = "baseImage"
	KeyPush           = "push"
	KeyBuildImage     = "buildImage"
	KeyEnableDebug    = "enableDebug"
	KeyDebugPort      = "debugPort"
	KeyDockerHost     = "dockerHost"
	KeyDockerCertPath = "dockerCertPath"
	KeyCmd            = "cmd"
	KeyCommandArg     = "commandArg"
	KeyWindows        = "windows"
)

// setter applies one annotation value to the partial descriptor.
type setter func(a *Assembler, key string, raw any) error

// setters maps every recognised key to its typed setter. Keys not present
// here are ignored.
var setters = map[string]setter{
	KeyName:           stringField(func(p *partial, v string) { p.name = v }),
	KeyRegistry:       stringField(func(p *partial, v string) { p.registry = strings.TrimSuffix(v, "/") }),
	KeyTag:            stringField(func(p *partial, v string) { p.tag = v }),
	KeyUsername:       stringField(func(p *partial, v string) { p.username = v }),
	KeyPassword:       stringField(func(p *partial, v string) { p.password = v }),
	KeyBaseImage:      stringField(func(p *partial, v string) { p.baseImage = v }),
	KeyDockerHost:     stringField(func(p *partial, v string) { p.engineHost = v }),
	KeyDockerCertPath: stringField(func(p *partial, v string) { p.engineCertPath = v }),
	KeyCmd:            stringField(func(p *partial, v string) { p.cmd = v }),
	KeyCommandArg:     stringField(func(p *partial, v string) { p.commandArg = v }),
	KeyPush:           boolField(func(p *partial, v bool) { p.push = v }),
	KeyBuildImage:     boolField(func(p *partial, v bool) { p.buildImage = v }),
	KeyEnableDebug:    boolField(func(p *partial, v bool) { p.enableDebug = v }),
	KeyWindows:        boolField(func(p *partial, v bool) { p.windows = v }),
	KeyDebugPort:      intField(func(p *partial, v int) { p.debugPort = v }),
}

// IsKnownKey reports whether key is a recognised annotation key.
func IsKnownKey(key string) bool {
	_, ok := setters[key]
	return ok
}

func stringField(apply func(*partial, string)) setter {
	return func(a *Assembler, key string, raw any) error {
		s, err := a.stringValue(key, raw)
		if err != nil {
			return err
		}
		apply(&a.p, s)
		return nil
	}
}

func boolField(apply func(*partial, bool)) setter {
	return func(a *Assembler, key string, raw any) error {
		var b bool
		switch v := raw.(type) {
		case bool:
			b = v
		case string:
			s, err := a.expand(key, v)
			if err != nil {
				return err
			}
			b, err = strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return a.configErr(key, fmt.Sprintf("%q is not a boolean", s), nil)
			}
		default:
			return a.configErr(key, fmt.Sprintf("expected boolean, got %T", raw), nil)
		}
		apply(&a.p, b)
		return nil
	}
}

func intField(apply func(*partial, int)) setter {
	return func(a *Assembler, key string, raw any) error {
		n, err := a.intValue(key, raw)
		if err != nil {
			return err
		}
		apply(&a.p, n)
		return nil
	}
}

func (a *Assembler) stringValue(key string, raw any) (string, error) {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case int, int32, int64:
		s = fmt.Sprint(v)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return "", a.configErr(key, fmt.Sprintf("expected string, got %T", raw), nil)
	}
	return a.expand(key, s)
}

func (a *Assembler) intValue(key string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, a.configErr(key, fmt.Sprintf("%d is out of range", v), nil)
		}
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, a.configErr(key, fmt.Sprintf("%v is not an integer", v), nil)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, a.configErr(key, fmt.Sprintf("%v is out of range", v), nil)
		}
		return int(v), nil
	case string:
		s, err := a.expand(key, v)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, a.configErr(key, fmt.Sprintf("%q is not an integer", s), nil)
		}
		return n, nil
	default:
		return 0, a.configErr(key, fmt.Sprintf("expected integer, got %T", raw), nil)
	}
}

func (a *Assembler) expand(key, s string) (string, error) {
	out, err := ExpandEnv(s, a.lookup)
	if err != nil {
		return "", a.configErr(key, "cannot resolve value", err)
	}
	return out, nil
}
