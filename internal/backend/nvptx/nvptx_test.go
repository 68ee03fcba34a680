package nvptx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-gpu/lumen/internal/backend"
	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/llvmir"
)

func addModule() *llvmir.Module {
	m := llvmir.NewModule("add")
	m.SetTarget(Triple, DataLayout)
	fn := m.NewKernel("main_kernel", []llvmir.Param{
		{Name: "arg0", Type: "float*"},
		{Name: "arg1", Type: "float*"},
		{Name: "out", Type: "float*"},
	})
	tid := fn.Call("i32", "llvm.nvvm.read.ptx.sreg.tid.x")
	p0 := fn.GEP("float", "%arg0", tid)
	p1 := fn.GEP("float", "%arg1", tid)
	a := fn.Load("float", p0)
	b := fn.Load("float", p1)
	sum := fn.Binary("fadd", "float", a, b)
	po := fn.GEP("float", "%out", tid)
	fn.Store("float", sum, po)
	fn.Ret()
	return m
}

func options(t *testing.T) backend.Options {
	t.Helper()
	return backend.Options{
		Cuda:          device.CudaComputeCapabilityFromSM(70),
		Rocm:          device.DefaultRocmComputeCapability(),
		DeviceInfo:    device.V100DeviceInfo(),
		SupportLibDir: t.TempDir(),
	}
}

func TestBackend_TargetMetadata(t *testing.T) {
	b := New()
	assert.Equal(t, "NVPTX", b.Name())
	assert.Equal(t, "CUDA", b.PlatformName())
	assert.Equal(t, device.PlatformCUDA, b.PlatformID())
	assert.Equal(t, "nvptx64-nvidia-cuda", b.TargetTriple())
	assert.NotEmpty(t, b.DataLayout())
}

func TestLower_EmitsPTX(t *testing.T) {
	art, err := New().Lower(addModule(), options(t))
	require.NoError(t, err)

	assert.Equal(t, backend.AssemblyText, art.Kind)
	assert.Empty(t, art.Image)

	ptx := art.Assembly
	assert.Contains(t, ptx, ".version "+ptxVersion)
	assert.Contains(t, ptx, ".target sm_70")
	assert.Contains(t, ptx, ".address_size 64")
	assert.Contains(t, ptx, ".visible .entry main_kernel(")
	assert.Contains(t, ptx, "ld.param.u64")
	assert.Contains(t, ptx, "cvta.to.global.u64")
	assert.Contains(t, ptx, "mov.u32 \t%r1, %tid.x;")
	assert.Contains(t, ptx, "ld.global.f32")
	assert.Contains(t, ptx, "add.f32")
	assert.Contains(t, ptx, "st.global.f32")
	assert.Contains(t, ptx, "ret;")
}

func TestLower_TargetFollowsComputeCapability(t *testing.T) {
	opts := options(t)
	opts.Cuda = device.CudaComputeCapabilityFromSM(86)

	art, err := New().Lower(addModule(), opts)
	require.NoError(t, err)
	assert.Contains(t, art.Assembly, ".target sm_86")
}

func TestLower_UnsupportedComputeCapability(t *testing.T) {
	for _, sm := range []int{20, 30, 34} {
		opts := options(t)
		opts.Cuda = device.CudaComputeCapabilityFromSM(sm)
		_, err := New().Lower(addModule(), opts)
		require.Error(t, err, "sm %d", sm)
		assert.Contains(t, err.Error(), "unsupported compute capability")
	}
}

func TestLower_MissingLibdeviceDir(t *testing.T) {
	opts := options(t)
	opts.SupportLibDir = filepath.Join(t.TempDir(), "does-not-exist")

	_, err := New().Lower(addModule(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), opts.SupportLibDir)
}

func TestLower_LibdevicePathIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "libdevice.10.bc")
	writeFile(t, file)

	opts := options(t)
	opts.SupportLibDir = file

	_, err := New().Lower(addModule(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestLower_RejectsHalfPrecisionMathCalls(t *testing.T) {
	build := func(callee string) *llvmir.Module {
		m := llvmir.NewModule("h")
		fn := m.NewKernel("main_kernel", []llvmir.Param{
			{Name: "arg0", Type: "half*"},
			{Name: "out", Type: "half*"},
		})
		tid := fn.Call("i32", "llvm.nvvm.read.ptx.sreg.tid.x")
		p := fn.GEP("half", "%arg0", tid)
		x := fn.Load("half", p)
		y := fn.Call("half", callee, x)
		po := fn.GEP("half", "%out", tid)
		fn.Store("half", y, po)
		fn.Ret()
		return m
	}

	// The exp and tanh lowerings only exist for f32 registers; a half
	// operand must be rejected rather than emitted with mixed register
	// classes.
	for _, callee := range []string{"llvm.exp.f16", "__nv_tanhf"} {
		_, err := New().Lower(build(callee), options(t))
		require.Error(t, err, callee)
		assert.Contains(t, err.Error(), "no PTX lowering")
	}
}

func TestLower_OptimizesBeforeEmission(t *testing.T) {
	m := llvmir.NewModule("fold")
	fn := m.NewKernel("k", []llvmir.Param{{Name: "out", Type: "float*"}})
	tid := fn.Call("i32", "llvm.nvvm.read.ptx.sreg.tid.x")
	c := fn.Binary("fmul", "float", "3.0", "2.0")
	po := fn.GEP("float", "%out", tid)
	fn.Store("float", c, po)
	fn.Ret()

	art, err := New().Lower(m, options(t))
	require.NoError(t, err)

	// The constant multiply folds to 6.0 before emission, so the PTX holds
	// a mov of the literal rather than a mul.
	assert.NotContains(t, art.Assembly, "mul.f32")
	assert.Contains(t, art.Assembly, "mov.f32")
	assert.True(t, strings.Contains(art.Assembly, "0f40C00000"), "expected literal 6.0 in hex float form")
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("bc"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLibdeviceDir_EnvOverride(t *testing.T) {
	t.Setenv(libdeviceDirEnv, "/custom/libdevice")
	assert.Equal(t, "/custom/libdevice", LibdeviceDir())
}

func TestLibdeviceDir_Default(t *testing.T) {
	t.Setenv(libdeviceDirEnv, "")
	assert.Equal(t, DefaultLibdeviceDir, LibdeviceDir())
}
