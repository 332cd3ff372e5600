package kline

import "unsafe"

// baseClock is the UART reference clock most 16550-derived USB-serial
// adapters report through TIOCGSERIAL; CustomDivisor = baseClock/baud gives
// the driver the rate to actually run at once ASYNC_SPD_CUST is set.
const baseClock = 1843200

// setBaud asks d to run at baud. It first tries the portable termios CBAUD
// encoding (SetBaudRaw, satisfied by both *Port and any test fake); if baud
// has no standard encoding (8800 baud is the one this protocol actually
// needs) and d is a real *Port, it falls back to the Linux
// serial_struct/ASYNC_SPD_CUST custom-divisor ioctl. Failure here is fatal
// to the session; there's no third option.
func setBaud(d device, baud int) error {
	ok, err := d.SetBaudRaw(baud)
	if err != nil {
		return newErr(KindIO, "set baud (portable)", err)
	}
	if ok {
		return nil
	}
	p, isPort := d.(*Port)
	if !isPort {
		return newErr(KindIO, "non-standard baud rate not supported by this device", nil)
	}
	return setBaudCustomDivisor(p, baud)
}

func setBaudCustomDivisor(p *Port, baud int) error {
	var s serialStruct
	if err := ioctlPointer(p.fd, tiocgserial, unsafe.Pointer(&s)); err != nil {
		return newErr(KindIO, "TIOCGSERIAL", err)
	}
	s.Flags = (s.Flags &^ 0x1F) | aSyncSPDCust
	s.CustomDivisor = int32(baseClock / baud)
	if s.CustomDivisor <= 0 {
		return newErr(KindIO, "no custom divisor for non-standard baud", nil)
	}
	if err := ioctlPointer(p.fd, tiocsserial, unsafe.Pointer(&s)); err != nil {
		return newErr(KindIO, "TIOCSSERIAL", err)
	}
	// The kernel now maps B38400 to the custom divisor; select it.
	ok, err := func() (bool, error) {
		attrs, err := p.getAttr()
		if err != nil {
			return false, err
		}
		attrs.Cflag &^= cbaud
		attrs.Cflag |= b19200 + 1 // B38400 follows B19200 in the CBAUD table
		return true, p.setAttr(attrs)
	}()
	if err != nil {
		return newErr(KindIO, "select B38400 for custom divisor", err)
	}
	_ = ok
	return nil
}
