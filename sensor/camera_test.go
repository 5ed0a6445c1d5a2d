package sensor

import (
	"errors"
	"sync/atomic"
	"testing"
)

// fakeSource delivers n frames, then fails every read.
type fakeSource struct {
	n      int
	reads  int
	closes atomic.Int32
}

func (f *fakeSource) ReadFrame() (*Frame, error) {
	f.reads++
	if f.reads > f.n {
		return nil, errors.New("fake: device gone")
	}
	return &Frame{Data: make([]byte, 4), Width: 1, Height: 1}, nil
}

func (f *fakeSource) Close() error {
	f.closes.Add(1)
	return nil
}

func openFake(src *fakeSource) OpenFunc {
	return func(CameraConfig) (FrameSource, error) { return src, nil }
}

var testCamera = CameraConfig{DeviceIndex: 0, Width: 1, Height: 1}

func TestNewCameraSensor_OpenFailure(t *testing.T) {
	open := func(CameraConfig) (FrameSource, error) {
		return nil, errors.New("no such device")
	}

	cam, err := NewCameraSensor("Camera", testCamera, open, NewFrameSlot())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want ErrDeviceUnavailable", err)
	}
	if cam != nil {
		t.Error("camera should be nil on failure")
	}

	// Close on a partially constructed (nil) camera is a no-op.
	if err := cam.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestNewCameraSensor_InvalidIndex(t *testing.T) {
	cfg := testCamera
	cfg.DeviceIndex = -1

	_, err := NewCameraSensor("Camera", cfg, OpenSynthetic, NewFrameSlot())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestCameraSensor_Get_StoresFrames(t *testing.T) {
	src := &fakeSource{n: 3}
	slot := NewFrameSlot()

	cam, err := NewCameraSensor("Camera", testCamera, openFake(src), slot)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	for want := int64(1); want <= 3; want++ {
		seq, err := cam.Get()
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if seq != want {
			t.Errorf("Get() = %d, want %d", seq, want)
		}
	}

	f := slot.Load()
	if f == nil || f.Seq != 3 {
		t.Fatalf("slot frame = %+v, want seq 3", f)
	}
	if f.TraceID == "" {
		t.Error("stored frame has no trace id")
	}
}

func TestCameraSensor_Get_ReadFailureKeepsLastFrame(t *testing.T) {
	src := &fakeSource{n: 1}
	slot := NewFrameSlot()
	cam, _ := NewCameraSensor("Camera", testCamera, openFake(src), slot)

	if _, err := cam.Get(); err != nil {
		t.Fatal(err)
	}
	_, err := cam.Get()
	if !errors.Is(err, ErrFrameRead) {
		t.Fatalf("error = %v, want ErrFrameRead", err)
	}
	if f := slot.Load(); f == nil || f.Seq != 1 {
		t.Errorf("slot should keep last good frame, got %+v", f)
	}
}

// scriptedSource returns its frames in order, then fails.
type scriptedSource struct {
	frames []*Frame
}

func (s *scriptedSource) ReadFrame() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, errors.New("scripted: no more frames")
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *scriptedSource) Close() error { return nil }

func TestCameraSensor_Get_RejectsMalformedFrame(t *testing.T) {
	testCases := []struct {
		name  string
		frame *Frame
	}{
		{"short_data", &Frame{Data: make([]byte, 4), Width: 200, Height: 100}},
		{"zero_width", &Frame{Data: make([]byte, 4), Width: 0, Height: 1}},
		{"negative_height", &Frame{Data: make([]byte, 4), Width: 1, Height: -1}},
		{"nil_data", &Frame{Width: 1, Height: 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			good := &Frame{Data: make([]byte, 4*2*2), Width: 2, Height: 2}
			src := &scriptedSource{frames: []*Frame{good, tc.frame}}
			slot := NewFrameSlot()

			cam, err := NewCameraSensor("Camera", CameraConfig{Width: 2, Height: 2}, func(CameraConfig) (FrameSource, error) {
				return src, nil
			}, slot)
			if err != nil {
				t.Fatal(err)
			}
			defer cam.Close()

			if _, err := cam.Get(); err != nil {
				t.Fatalf("first Get() error = %v", err)
			}
			if _, err := cam.Get(); !errors.Is(err, ErrFrameRead) {
				t.Fatalf("Get() error = %v, want ErrFrameRead", err)
			}

			f := slot.Load()
			if f == nil || f.Seq != 1 || f.Width != 2 {
				t.Fatalf("slot should keep last good frame, got %+v", f)
			}
			if img := slot.Snapshot().Image(); img.Bounds().Dx() != 2 {
				t.Errorf("snapshot image width = %d, want 2", img.Bounds().Dx())
			}
			if st := slot.Stats(); st.Stored != 1 {
				t.Errorf("Stored = %d, want 1", st.Stored)
			}
		})
	}
}

func TestCameraSensor_Close_Once(t *testing.T) {
	src := &fakeSource{n: 1}
	cam, _ := NewCameraSensor("Camera", testCamera, openFake(src), NewFrameSlot())

	for i := 0; i < 3; i++ {
		if err := cam.Close(); err != nil {
			t.Errorf("Close() #%d error = %v", i+1, err)
		}
	}
	if got := src.closes.Load(); got != 1 {
		t.Errorf("device released %d times, want 1", got)
	}
}

func TestSyntheticSource_Frames(t *testing.T) {
	src, err := OpenSynthetic(CameraConfig{Width: 8, Height: 4, FPS: 1000})
	if err != nil {
		t.Fatal(err)
	}

	f, err := src.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Data) != 8*4*4 {
		t.Errorf("frame size = %d, want %d", len(f.Data), 8*4*4)
	}

	src.Close()
	if _, err := src.ReadFrame(); err == nil {
		t.Error("read after Close should fail")
	}
}

func TestCameraSensor_SourceStats(t *testing.T) {
	cfg := CameraConfig{Width: 8, Height: 4, FPS: 1000, Source: "synthetic"}
	cam, err := NewCameraSensor("Camera", cfg, OpenSynthetic, NewFrameSlot())
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	for i := 0; i < 3; i++ {
		if _, err := cam.Get(); err != nil {
			t.Fatalf("Get() #%d error = %v", i+1, err)
		}
	}

	st, ok := cam.SourceStats()
	if !ok {
		t.Fatal("synthetic source should report stats")
	}
	if st.Frames != 3 || st.BytesRead != 3*8*4*4 {
		t.Errorf("SourceStats() = %+v, want 3 frames of %d bytes", st, 8*4*4)
	}
	if got := cam.Config().Resolution(); got != "8x4" {
		t.Errorf("Config().Resolution() = %q", got)
	}
	if cam.Slot().Stats().Stored != 3 {
		t.Errorf("slot stored = %d, want 3", cam.Slot().Stats().Stored)
	}

	plain, _ := NewCameraSensor("Camera", testCamera, openFake(&fakeSource{n: 1}), NewFrameSlot())
	if _, ok := plain.SourceStats(); ok {
		t.Error("source without counters should report none")
	}
}

func TestCameraConfig_Device(t *testing.T) {
	cfg := CameraConfig{DeviceIndex: 2}
	if got := cfg.Device(); got != "/dev/video2" {
		t.Errorf("Device() = %q, want /dev/video2", got)
	}
}
