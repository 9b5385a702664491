/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package protocol

import (
	"encoding/binary"
	"fmt"
)

// gPTP (IEEE 802.1AS) adds a handful of organization-extension TLVs on top
// of the base PTPv2 wire format decoded above. They all share the same
// 00:80:C2 (IEEE 802.1) organizationId and are distinguished by a 3-byte
// organizationSubType.

// OrgIDIEEE8021 is the organizationId gPTP organization-extension TLVs use.
var OrgIDIEEE8021 = [3]uint8{0x00, 0x80, 0xC2}

// gPTP organizationSubType values (IEEE 802.1AS-2020 Table 11-5, 10-7, 10-8).
var (
	OrgSubTypeFollowUpInformation    = [3]uint8{0x00, 0x00, 0x01}
	OrgSubTypeMessageIntervalRequest = [3]uint8{0x00, 0x00, 0x02}
	OrgSubTypeGPTPCapable            = [3]uint8{0x00, 0x00, 0x04}
)

func orgExtHeadMarshalBinaryTo(head *TLVHead, orgSubType [3]uint8, b []byte) int {
	tlvHeadMarshalBinaryTo(head, b)
	copy(b[tlvHeadSize:], OrgIDIEEE8021[:])
	copy(b[tlvHeadSize+3:], orgSubType[:])
	return tlvHeadSize + 6
}

func readOrgExtSubType(b []byte) ([3]uint8, error) {
	if len(b) < tlvHeadSize+6 {
		return [3]uint8{}, fmt.Errorf("not enough data to read organization extension TLV head")
	}
	var subType [3]uint8
	copy(subType[:], b[tlvHeadSize+3:tlvHeadSize+6])
	return subType, nil
}

// ScaledNs is a signed fixed-point nanosecond value with 16 bits of
// sub-nanosecond fraction, IEEE 1588-2019 Table 14. The daemon only ever
// forwards it between FollowUp messages (lastGmPhaseChange), so the
// fractional part is carried but never interpreted arithmetically.
type ScaledNs struct {
	NanosecondsMSB        int16
	NanosecondsLSB        uint64
	FractionalNanoseconds uint16
}

// NewScaledNs builds a ScaledNs from a whole nanosecond count.
func NewScaledNs(ns int64) ScaledNs {
	msb := int16(0)
	if ns < 0 {
		msb = -1
	}
	return ScaledNs{NanosecondsMSB: msb, NanosecondsLSB: uint64(ns)}
}

// Nanoseconds returns the integer nanosecond part, dropping the fraction.
func (s ScaledNs) Nanoseconds() int64 {
	return int64(s.NanosecondsLSB)
}

const scaledNsSize = 12

// MarshalBinaryTo marshals ScaledNs into b, always writing scaledNsSize bytes.
func (s ScaledNs) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < scaledNsSize {
		return 0, fmt.Errorf("not enough buffer to write ScaledNs")
	}
	binary.BigEndian.PutUint16(b, uint16(s.NanosecondsMSB))
	binary.BigEndian.PutUint64(b[2:], s.NanosecondsLSB)
	binary.BigEndian.PutUint16(b[10:], s.FractionalNanoseconds)
	return scaledNsSize, nil
}

// UnmarshalBinary parses ScaledNs from b.
func (s *ScaledNs) UnmarshalBinary(b []byte) error {
	if len(b) < scaledNsSize {
		return fmt.Errorf("not enough data to decode ScaledNs")
	}
	s.NanosecondsMSB = int16(binary.BigEndian.Uint16(b))
	s.NanosecondsLSB = binary.BigEndian.Uint64(b[2:])
	s.FractionalNanoseconds = binary.BigEndian.Uint16(b[10:])
	return nil
}

// FollowUpInformationTLV rides along FollowUp messages and carries the
// cumulative rate ratio and grandmaster time-base bookkeeping a two-step
// slave needs to convert upstreamTxTime into its own clock's frame.
// IEEE 802.1AS-2020 11.4.4.3.
type FollowUpInformationTLV struct {
	TLVHead
	OrganizationID             [3]uint8
	OrganizationSubType        [3]uint8
	CumulativeScaledRateOffset int32
	GMTimeBaseIndicator        uint16
	LastGMPhaseChange          ScaledNs
	ScaledLastGMFreqChange     int32
}

// followUpInformationBodyLen is the TLV body length (everything after the
// 4-byte TLV head): 3 + 3 + 4 + 2 + 12 + 4 = 28, per spec.
const followUpInformationBodyLen = 28

// MarshalBinaryTo marshals the FollowUpInformationTLV.
func (t *FollowUpInformationTLV) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < tlvHeadSize+followUpInformationBodyLen {
		return 0, fmt.Errorf("not enough buffer to write FollowUpInformationTLV")
	}
	t.TLVType = TLVOrganizationExtension
	t.LengthField = followUpInformationBodyLen
	orgExtHeadMarshalBinaryTo(&t.TLVHead, OrgSubTypeFollowUpInformation, b)
	pos := tlvHeadSize + 6
	binary.BigEndian.PutUint32(b[pos:], uint32(t.CumulativeScaledRateOffset))
	binary.BigEndian.PutUint16(b[pos+4:], t.GMTimeBaseIndicator)
	if _, err := t.LastGMPhaseChange.MarshalBinaryTo(b[pos+6:]); err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint32(b[pos+6+scaledNsSize:], uint32(t.ScaledLastGMFreqChange))
	return tlvHeadSize + followUpInformationBodyLen, nil
}

// UnmarshalBinary parses a FollowUpInformationTLV.
func (t *FollowUpInformationTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), followUpInformationBodyLen, true); err != nil {
		return err
	}
	copy(t.OrganizationID[:], b[tlvHeadSize:tlvHeadSize+3])
	subType, err := readOrgExtSubType(b)
	if err != nil {
		return err
	}
	t.OrganizationSubType = subType
	pos := tlvHeadSize + 6
	t.CumulativeScaledRateOffset = int32(binary.BigEndian.Uint32(b[pos:]))
	t.GMTimeBaseIndicator = binary.BigEndian.Uint16(b[pos+4:])
	if err := t.LastGMPhaseChange.UnmarshalBinary(b[pos+6:]); err != nil {
		return err
	}
	t.ScaledLastGMFreqChange = int32(binary.BigEndian.Uint32(b[pos+6+scaledNsSize:]))
	return nil
}

// RateRatio decodes CumulativeScaledRateOffset into a rateRatio multiplier,
// where 1.0 means "same rate", per IEEE 802.1AS 11.4.4.3: the field stores
// (rateRatio - 1.0) * 2**41.
func (t *FollowUpInformationTLV) RateRatio() float64 {
	return 1.0 + float64(t.CumulativeScaledRateOffset)/float64(int64(1)<<41)
}

// SetRateRatio encodes rateRatio into CumulativeScaledRateOffset.
func (t *FollowUpInformationTLV) SetRateRatio(rateRatio float64) {
	t.CumulativeScaledRateOffset = int32((rateRatio - 1.0) * float64(int64(1)<<41))
}

// MessageIntervalFlags are the flag bits of MessageIntervalRequestTLV,
// IEEE 802.1AS-2020 Table 11-8.
type MessageIntervalFlags uint8

// Bits of MessageIntervalFlags.
const (
	FlagComputeNeighborRateRatio MessageIntervalFlags = 1 << 1
	FlagComputeNeighborPropDelay MessageIntervalFlags = 1 << 2
	FlagOneStepReceiveCapable    MessageIntervalFlags = 1 << 4
)

// Sentinel values for the *Interval fields of MessageIntervalRequestTLV.
const (
	IntervalKeepCurrent LogInterval = -128
	IntervalSetInitial  LogInterval = 126
	IntervalStop        LogInterval = 127
)

// MessageIntervalRequestTLV is carried in a Signaling message to ask the
// peer to change its link-delay/sync/announce transmit interval, or to
// report which neighbor computations it wants the far end to perform.
// IEEE 802.1AS-2020 11.4.4.4.
type MessageIntervalRequestTLV struct {
	TLVHead
	OrganizationID      [3]uint8
	OrganizationSubType [3]uint8
	LinkDelayInterval   LogInterval
	TimeSyncInterval    LogInterval
	AnnounceInterval    LogInterval
	Flags               MessageIntervalFlags
}

const messageIntervalRequestBodyLen = 12

// MarshalBinaryTo marshals the MessageIntervalRequestTLV.
func (t *MessageIntervalRequestTLV) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < tlvHeadSize+messageIntervalRequestBodyLen {
		return 0, fmt.Errorf("not enough buffer to write MessageIntervalRequestTLV")
	}
	t.TLVType = TLVOrganizationExtension
	t.LengthField = messageIntervalRequestBodyLen
	orgExtHeadMarshalBinaryTo(&t.TLVHead, OrgSubTypeMessageIntervalRequest, b)
	pos := tlvHeadSize + 6
	b[pos] = byte(t.LinkDelayInterval)
	b[pos+1] = byte(t.TimeSyncInterval)
	b[pos+2] = byte(t.AnnounceInterval)
	b[pos+3] = byte(t.Flags)
	// remaining 2 reserved bytes left zero
	return tlvHeadSize + messageIntervalRequestBodyLen, nil
}

// UnmarshalBinary parses a MessageIntervalRequestTLV.
func (t *MessageIntervalRequestTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), messageIntervalRequestBodyLen, true); err != nil {
		return err
	}
	copy(t.OrganizationID[:], b[tlvHeadSize:tlvHeadSize+3])
	subType, err := readOrgExtSubType(b)
	if err != nil {
		return err
	}
	t.OrganizationSubType = subType
	pos := tlvHeadSize + 6
	t.LinkDelayInterval = LogInterval(b[pos])
	t.TimeSyncInterval = LogInterval(b[pos+1])
	t.AnnounceInterval = LogInterval(b[pos+2])
	t.Flags = MessageIntervalFlags(b[pos+3])
	return nil
}

// GPTPCapableTLV announces gPTP-capability on a port, IEEE 802.1AS-2020
// 11.4.4.5; its periodic transmission/receipt drives the
// gPtpCapableTransmit/Receive state machines.
type GPTPCapableTLV struct {
	TLVHead
	OrganizationID                 [3]uint8
	OrganizationSubType            [3]uint8
	LogGptpCapableMessageInterval  LogInterval
	Flags                          MessageIntervalFlags
}

const gptpCapableBodyLen = 10

// MarshalBinaryTo marshals the GPTPCapableTLV.
func (t *GPTPCapableTLV) MarshalBinaryTo(b []byte) (int, error) {
	if len(b) < tlvHeadSize+gptpCapableBodyLen {
		return 0, fmt.Errorf("not enough buffer to write GPTPCapableTLV")
	}
	t.TLVType = TLVOrganizationExtension
	t.LengthField = gptpCapableBodyLen
	orgExtHeadMarshalBinaryTo(&t.TLVHead, OrgSubTypeGPTPCapable, b)
	pos := tlvHeadSize + 6
	b[pos] = byte(t.LogGptpCapableMessageInterval)
	b[pos+1] = byte(t.Flags)
	return tlvHeadSize + gptpCapableBodyLen, nil
}

// UnmarshalBinary parses a GPTPCapableTLV.
func (t *GPTPCapableTLV) UnmarshalBinary(b []byte) error {
	if err := unmarshalTLVHeader(&t.TLVHead, b); err != nil {
		return err
	}
	if err := checkTLVLength(&t.TLVHead, len(b), gptpCapableBodyLen, true); err != nil {
		return err
	}
	copy(t.OrganizationID[:], b[tlvHeadSize:tlvHeadSize+3])
	subType, err := readOrgExtSubType(b)
	if err != nil {
		return err
	}
	t.OrganizationSubType = subType
	pos := tlvHeadSize + 6
	t.LogGptpCapableMessageInterval = LogInterval(b[pos])
	t.Flags = MessageIntervalFlags(b[pos+1])
	return nil
}

// CMLDS sdoId values. Per spec.md 4.3 "CMLDS multiplexing": Pdelay
// messages serving a single per-instance domain carry SdoId 1, while
// ones serving the Common Mean Link Delay Service shared across domains
// carry SdoId 2 in the top nibble of the first header byte.
const (
	SdoIDDefault uint8 = 1
	SdoIDCMLDS   uint8 = 2
)

// SdoIDForPdelay returns the SdoId a Pdelay-family message should use.
func SdoIDForPdelay(cmlds bool) uint8 {
	if cmlds {
		return SdoIDCMLDS
	}
	return SdoIDDefault
}

// IsCMLDSPdelay reports whether a decoded Pdelay-family header uses the
// CMLDS SdoId.
func IsCMLDSPdelay(h *Header) bool {
	return uint8(h.SdoIDAndMsgType>>4) == SdoIDCMLDS
}

// unmarshalOrganizationExtensionTLV dispatches a TLVOrganizationExtension
// head to the concrete gPTP TLV its organizationSubType names, returning
// the parsed TLV and the number of bytes it occupied.
func unmarshalOrganizationExtensionTLV(b []byte) (TLV, int, error) {
	subType, err := readOrgExtSubType(b)
	if err != nil {
		return nil, 0, err
	}
	switch subType {
	case OrgSubTypeFollowUpInformation:
		tlv := &FollowUpInformationTLV{}
		if err := tlv.UnmarshalBinary(b); err != nil {
			return nil, 0, err
		}
		return tlv, tlvHeadSize + int(tlv.LengthField), nil
	case OrgSubTypeMessageIntervalRequest:
		tlv := &MessageIntervalRequestTLV{}
		if err := tlv.UnmarshalBinary(b); err != nil {
			return nil, 0, err
		}
		return tlv, tlvHeadSize + int(tlv.LengthField), nil
	case OrgSubTypeGPTPCapable:
		tlv := &GPTPCapableTLV{}
		if err := tlv.UnmarshalBinary(b); err != nil {
			return nil, 0, err
		}
		return tlv, tlvHeadSize + int(tlv.LengthField), nil
	default:
		return nil, 0, fmt.Errorf("reading organization extension TLV with subType %v is not yet implemented", subType)
	}
}
