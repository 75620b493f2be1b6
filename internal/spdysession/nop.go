package spdysession

// nopProperties is the default PropertiesStore when a Session is
// constructed without one: nothing is remembered across connections.
type nopProperties struct{}

func (nopProperties) GetSettings(string) ([]Setting, bool)            { return nil, false }
func (nopProperties) SetSetting(string, SettingID, ControlFlags, uint32) {}
func (nopProperties) ClearSettings(string)                             {}

// nopEvents is the default EventSink when a Session is constructed
// without one: every event is silently dropped.
type nopEvents struct{}

func (nopEvents) OnSessionOpen(*Session)                                {}
func (nopEvents) OnFrameSent(*Session, FrameType, StreamID, int)        {}
func (nopEvents) OnFrameRecv(*Session, FrameType, StreamID, int)        {}
func (nopEvents) OnError(*Session, error)                               {}
func (nopEvents) OnSettingsReceived(*Session, []Setting)                {}
func (nopEvents) OnWindowUpdate(*Session, StreamID, uint32)             {}
func (nopEvents) OnGoAway(*Session, StreamID, GoAwayStatus)             {}
