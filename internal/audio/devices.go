package audio

// ListDevices enumerates the loopback and microphone endpoints the active
// backend can capture from.
func ListDevices() (Devices, error) {
	ctx, err := newEndpointContext()
	if err != nil {
		return Devices{}, err
	}
	defer ctx.close()
	return ctx.listDevices()
}
