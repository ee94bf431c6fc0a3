package camera

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Device != "0" {
		t.Errorf("Expected device 0, got %s", cfg.Device)
	}
	if cfg.Quality != 90 {
		t.Errorf("Expected quality 90, got %d", cfg.Quality)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing device", func(c *Config) { c.Device = "" }, true},
		{"quality too low", func(c *Config) { c.Quality = 0 }, true},
		{"quality too high", func(c *Config) { c.Quality = 101 }, true},
		{"negative width", func(c *Config) { c.Width = -1 }, true},
		{"negative warmup", func(c *Config) { c.WarmupFrames = -1 }, true},
		{"url device", func(c *Config) { c.Device = "rtsp://cam.local/stream" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quality = 0
	if _, err := New(cfg, nil); err == nil {
		t.Error("Expected error for invalid config")
	}
}
