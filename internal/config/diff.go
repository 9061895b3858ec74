package config

import "reflect"

// ConfigDiff describes what changed between two configs, grouped by the
// subsystem that consumes each area. The app applies the hot areas live
// and logs a restart warning for the rest.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Hot-reloadable areas.
	BindingsChanged    bool
	EngineChanged      bool // the engine selection key
	EnginesChanged     bool // any per-engine section
	CredentialsChanged bool
	TriggersChanged    bool
	EnhancementChanged bool
	VocabChanged       bool

	// Areas that only take effect after a restart.
	CaptureChanged  bool
	HistoryChanged  bool
	DeliveryChanged bool
	ServerChanged   bool
}

// Changed reports whether any area differs.
func (d ConfigDiff) Changed() bool {
	return d != ConfigDiff{}
}

// RestartRequired lists the changed areas that cannot be applied live.
func (d ConfigDiff) RestartRequired() []string {
	var areas []string
	if d.CaptureChanged {
		areas = append(areas, "capture")
	}
	if d.HistoryChanged {
		areas = append(areas, "history")
	}
	if d.DeliveryChanged {
		areas = append(areas, "delivery")
	}
	if d.ServerChanged {
		areas = append(areas, "server")
	}
	return areas
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	d.BindingsChanged = old.Bindings != new.Bindings
	d.EngineChanged = old.Engine != new.Engine
	d.EnginesChanged = !reflect.DeepEqual(old.Engines, new.Engines)
	d.CredentialsChanged = !reflect.DeepEqual(old.Credentials, new.Credentials)
	d.TriggersChanged = !reflect.DeepEqual(old.Triggers, new.Triggers)
	d.EnhancementChanged = !reflect.DeepEqual(old.Enhancement, new.Enhancement)
	d.VocabChanged = !reflect.DeepEqual(old.Vocab, new.Vocab)

	d.CaptureChanged = old.Capture != new.Capture
	d.HistoryChanged = !reflect.DeepEqual(old.History, new.History)
	d.DeliveryChanged = !reflect.DeepEqual(old.Delivery, new.Delivery)
	d.ServerChanged = old.Server != new.Server

	return d
}
