package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/hlo"
)

func cudaConfig() TargetConfig {
	return TargetConfig{
		TargetTriple: "nvptx64-nvidia-cuda",
		DataLayout:   "e-i64:64-i128:128-v16:16-v32:32-n16:32:64",
		PlatformName: "CUDA",
		PlatformID:   device.PlatformCUDA,
		PointerSize:  8,
		DeviceInfo:   device.V100DeviceInfo(),
		Cuda:         device.CudaComputeCapabilityFromSM(70),
		Rocm:         device.DefaultRocmComputeCapability(),
	}
}

func rocmConfig() TargetConfig {
	cfg := cudaConfig()
	cfg.TargetTriple = "amdgcn--amdhsa-amdgiz"
	cfg.PlatformName = "ROCm"
	cfg.PlatformID = device.PlatformROCm
	return cfg
}

func mustParse(t *testing.T, text string) *hlo.Module {
	t.Helper()
	mod, err := hlo.ParseModule(text)
	require.NoError(t, err)
	return mod
}

const addText = `
HloModule add

ENTRY main {
  x = f32[4] parameter(0)
  y = f32[4] parameter(1)
  ROOT sum = f32[4] add(x, y)
}
`

func TestCompileModuleToIR_Add(t *testing.T) {
	ir, err := CompileModuleToIR(mustParse(t, addText), cudaConfig())
	require.NoError(t, err)
	require.False(t, ir.Empty())

	text := ir.String()
	assert.Contains(t, text, `target triple = "nvptx64-nvidia-cuda"`)
	assert.Contains(t, text, "define void @main_kernel(float* %arg0, float* %arg1, float* %out)")
	assert.Contains(t, text, "@llvm.nvvm.read.ptx.sreg.tid.x()")
	assert.Contains(t, text, "fadd float")
	assert.Contains(t, text, "ret void")
}

func TestCompileModuleToIR_ParameterOnlyModuleIsTrivial(t *testing.T) {
	text := `
HloModule passthrough

ENTRY main {
  ROOT p = f32[8] parameter(0)
}
`
	ir, err := CompileModuleToIR(mustParse(t, text), cudaConfig())
	require.NoError(t, err)

	// No device-targetable instruction: header-only IR, no kernels.
	assert.True(t, ir.Empty())
	assert.NotContains(t, ir.String(), "define")
}

func TestCompileModuleToIR_RocmIntrinsics(t *testing.T) {
	text := `
HloModule t

ENTRY main {
  p = f32[16] parameter(0)
  ROOT th = f32[16] tanh(p)
}
`
	ir, err := CompileModuleToIR(mustParse(t, text), rocmConfig())
	require.NoError(t, err)

	out := ir.String()
	assert.Contains(t, out, "@llvm.amdgcn.workitem.id.x()")
	assert.Contains(t, out, "@__ocml_tanh_f32")
	assert.NotContains(t, out, "nvvm")
}

func TestCompileModuleToIR_CudaTanhUsesLibdevice(t *testing.T) {
	text := `
HloModule t

ENTRY main {
  p = f32[16] parameter(0)
  ROOT th = f32[16] tanh(p)
}
`
	ir, err := CompileModuleToIR(mustParse(t, text), cudaConfig())
	require.NoError(t, err)
	assert.Contains(t, ir.String(), "@__nv_tanhf")
}

func TestCompileModuleToIR_ConstantsAndIntegerOps(t *testing.T) {
	text := `
HloModule mix

ENTRY main {
  a = s32[4] parameter(0)
  b = s32[4] parameter(1)
  s = s32[4] subtract(a, b)
  ROOT m = s32[4] maximum(s, a)
}
`
	ir, err := CompileModuleToIR(mustParse(t, text), cudaConfig())
	require.NoError(t, err)

	out := ir.String()
	assert.Contains(t, out, "sub i32")
	assert.Contains(t, out, "@llvm.smax.i32")
}

func TestCompileModuleToIR_FloatConstantLiteral(t *testing.T) {
	text := `
HloModule c

ENTRY main {
  p = f32[2] parameter(0)
  k = f32[] constant(2)
  ROOT r = f32[2] multiply(p, k)
}
`
	ir, err := CompileModuleToIR(mustParse(t, text), cudaConfig())
	require.NoError(t, err)

	// Integral float literals get a decimal point. The parameter load is
	// register %2 (after the thread id and the gep).
	assert.Contains(t, ir.String(), "fmul float %2, 2.0")
}

func TestCompileModuleToIR_HelperComputationsAreHostSide(t *testing.T) {
	text := `
HloModule helper

scale {
  h = f32[2] parameter(0)
  ROOT hh = f32[2] add(h, h)
}

ENTRY main {
  p = f32[2] parameter(0)
  ROOT n = f32[2] negate(p)
}
`
	ir, err := CompileModuleToIR(mustParse(t, text), cudaConfig())
	require.NoError(t, err)

	// Only the entry computation is emitted for the device.
	require.Len(t, ir.Functions, 1)
	assert.Equal(t, "main_kernel", ir.Functions[0].Name)
}

func TestCompileModuleToIR_Validation(t *testing.T) {
	mod := mustParse(t, addText)

	_, err := CompileModuleToIR(nil, cudaConfig())
	assert.Error(t, err)

	cfg := cudaConfig()
	cfg.TargetTriple = ""
	_, err = CompileModuleToIR(mod, cfg)
	assert.Error(t, err)

	cfg = cudaConfig()
	cfg.PointerSize = 4
	_, err = CompileModuleToIR(mod, cfg)
	if err == nil || !strings.Contains(err.Error(), "pointer size") {
		t.Errorf("expected pointer size error, got %v", err)
	}

	cfg = cudaConfig()
	cfg.DeviceInfo.ThreadsPerWarp = 0
	_, err = CompileModuleToIR(mod, cfg)
	assert.Error(t, err)
}

func TestCompileModuleToIR_UnsupportedTypeCombinations(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "s32 exponential",
			body: "  p = s32[4] parameter(0)\n  ROOT e = s32[4] exponential(p)",
			want: "exponential requires f32",
		},
		{
			name: "f16 exponential",
			body: "  p = f16[4] parameter(0)\n  ROOT e = f16[4] exponential(p)",
			want: "exponential requires f32",
		},
		{
			name: "f16 tanh",
			body: "  p = f16[4] parameter(0)\n  ROOT th = f16[4] tanh(p)",
			want: "tanh requires f32",
		},
		{
			name: "pred negate",
			body: "  p = pred[4] parameter(0)\n  ROOT n = pred[4] negate(p)",
			want: "negate is not defined for pred",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := "HloModule bad\n\nENTRY main {\n" + tc.body + "\n}\n"
			_, err := CompileModuleToIR(mustParse(t, text), cudaConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCompileModuleToIR_F16NegateStillLowers(t *testing.T) {
	text := `
HloModule h

ENTRY main {
  p = f16[4] parameter(0)
  ROOT n = f16[4] negate(p)
}
`
	ir, err := CompileModuleToIR(mustParse(t, text), cudaConfig())
	require.NoError(t, err)
	assert.Contains(t, ir.String(), "fneg half")
}
