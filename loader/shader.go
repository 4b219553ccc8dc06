package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/kaleforge/rgcore/device"
	"github.com/kaleforge/rgcore/resmgr"
	"github.com/kaleforge/rgcore/shader"
)

// ShaderLoader adapts a *shader.Manager into a resmgr.Loader: it infers
// the shader stage from the file extension and lets the manager own
// caching and hot reload.
type ShaderLoader struct {
	Manager *shader.Manager
}

var shaderStageExts = map[string]device.ShaderStage{
	".vert": device.StageVertex,
	".frag": device.StageFragment,
	".comp": device.StageCompute,
}

func (l ShaderLoader) Supports(path string) bool {
	_, ok := shaderStageExts[extOf(path)]
	return ok
}

func (l ShaderLoader) Load(path string, ctx *resmgr.Context) (any, error) {
	stage, ok := shaderStageExts[extOf(path)]
	if !ok {
		return nil, fmt.Errorf("loader: %q: unrecognized shader extension", path)
	}
	h := l.Manager.LoadShader(path, stage)
	if !h.IsValid() {
		return nil, fmt.Errorf("loader: %q: %s", path, l.Manager.LastError())
	}
	return h, nil
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}

// FileCompiler is a shader.Compiler that treats shader source files as
// already-compiled bytecode: it reads path verbatim and hands the raw
// bytes to the device, leaving any real compilation to the Device
// implementation. Concrete backends needing source-to-bytecode
// compilation (e.g. GLSL to SPIR-V) provide their own shader.Compiler.
type FileCompiler struct{}

func (FileCompiler) Compile(path string, stage device.ShaderStage) (device.ShaderDesc, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return device.ShaderDesc{}, err
	}
	return device.ShaderDesc{Stage: stage, Code: code}, nil
}
