// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "time"

var ntpEpochOffset int64 = 2208988800

func GetCurrentNTPTimestamp() uint64 {
	now := time.Now()
	return NTPTimestamp(now)
}

func NTPTimestamp(t time.Time) uint64 {
	// Number of seconds since NTP epoch
	seconds := t.Unix() + ntpEpochOffset

	// Fractional part
	nanos := t.Nanosecond()
	frac := (float64(nanos) / 1e9) * (1 << 32)

	// NTP timestamp is 32bit second | 32 bit fractional
	ntpTimestamp := (uint64(seconds) << 32) | uint64(frac)

	return ntpTimestamp
}

func NTPToTime(ntpTimestamp uint64) time.Time {
	// NTP timestamp is 32bit second | 32 bit fractional
	seconds := int64(ntpTimestamp >> 32)                         // Upper 32 bits
	frac := float64(ntpTimestamp&0x00000000FFFFFFFF) / (1 << 32) // Lower 32 bits

	// Convert NTP seconds to Unix seconds
	unixSeconds := seconds - ntpEpochOffset
	nsec := int64(frac * 1e9)

	// Create a time.Time object
	return time.Unix(unixSeconds, nsec)
}

// MiddleNTP extracts the middle 32 bits of a 64-bit NTP timestamp, used for
// the LSR field of a reception report (RFC 3550 section 6.4.1).
func MiddleNTP(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}

// DLSRSince returns the delay since the last SR was received, in 1/65536s
// units as required by the DLSR field. Returns 0 if lastSRRecvTime is zero.
func DLSRSince(lastSRRecvTime time.Time) uint32 {
	if lastSRRecvTime.IsZero() {
		return 0
	}
	return uint32(time.Since(lastSRRecvTime).Seconds() * 65536)
}

// CalcRTT derives round-trip time from a reception report's LSR/DLSR fields
// per RFC 3550 section 6.4.1: RTT = now - LSR - DLSR, all in Q16.16 NTP
// units. skewed reports a negative/out-of-range result, which happens when
// the remote hasn't yet echoed our most recent SR.
func CalcRTT(now time.Time, lastSR, delaySinceLastSR uint32) (rtt time.Duration, skewed bool) {
	now32 := MiddleNTP(NTPTimestamp(now))

	if lastSR == 0 {
		return 0, true
	}

	skewed = now32-delaySinceLastSR < lastSR
	rtt32 := now32 - lastSR - delaySinceLastSR

	secs := rtt32 >> 16
	fracs := float64(rtt32&0xFFFF) / 65536
	rtt = time.Duration(secs)*time.Second + time.Duration(fracs*float64(time.Second))
	return rtt, skewed
}
