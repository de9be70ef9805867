package role

import (
	"errors"
	"testing"
)

func TestNewResolver(t *testing.T) {
	testCases := []struct {
		name      string
		class     DeviceClass
		platform  Platform
		editor    DeviceClass
		wantWrite bool
		wantErr   error
	}{
		{
			name:      "editor class on desktop platform writes",
			class:     Laptop,
			platform:  Platform{OS: "linux", Handheld: false},
			editor:    Laptop,
			wantWrite: true,
		},
		{
			name:     "viewer class on handheld platform reads",
			class:    Android,
			platform: Platform{OS: "android", Handheld: true},
			editor:   Laptop,
		},
		{
			name:     "viewer class on desktop platform reads",
			class:    IPhone,
			platform: Platform{OS: "ios", Handheld: false},
			editor:   Laptop,
		},
		{
			name:     "editor class claimed on handheld platform is denied",
			class:    Laptop,
			platform: Platform{OS: "android", Handheld: true},
			editor:   Laptop,
			wantErr:  ErrAccessDenied,
		},
		{
			name:     "handheld platform is denied even when the editor class is handheld",
			class:    Android,
			platform: Platform{OS: "android", Handheld: true},
			editor:   Android,
			wantErr:  ErrAccessDenied,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resolver, err := NewResolver(tc.class, tc.platform, tc.editor)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("NewResolver() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewResolver() error = %v", err)
			}
			if got := resolver.CanWrite(); got != tc.wantWrite {
				t.Errorf("CanWrite() = %v, want %v", got, tc.wantWrite)
			}
			if got := resolver.Class(); got != tc.class {
				t.Errorf("Class() = %v, want %v", got, tc.class)
			}
		})
	}
}

func TestParseDeviceClass(t *testing.T) {
	testCases := []struct {
		in      string
		want    DeviceClass
		wantErr bool
	}{
		{in: "laptop", want: Laptop},
		{in: "android", want: Android},
		{in: "iphone", want: IPhone},
		{in: "Laptop", wantErr: true},
		{in: "", wantErr: true},
		{in: "desktop", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDeviceClass(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseDeviceClass(%q) error = nil, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDeviceClass(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseDeviceClass(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
