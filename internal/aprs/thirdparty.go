package aprs

import (
	"strings"
	"time"
)

// decodeThirdParty strips a `}srccall>dst,path:payload` envelope and
// recursively decodes the inner frame. Per §4.5, the caller must never
// re-transmit the inner packet to RF and must never count it as a
// direct reception — that accounting lives in the caller, not here.
func decodeThirdParty(info string, now time.Time) (*ThirdParty, error) {
	if info == "" || info[0] != '}' {
		return nil, ErrNotThisFormat
	}
	body := info[1:]

	gt := strings.IndexByte(body, '>')
	colon := strings.IndexByte(body, ':')
	if gt < 0 || colon < 0 || colon < gt {
		return nil, ErrNotThisFormat
	}
	innerSrc := body[:gt]
	pathPart := body[gt+1 : colon]
	innerInfo := body[colon+1:]

	pathFields := strings.Split(pathPart, ",")
	if len(pathFields) == 0 {
		return nil, ErrNotThisFormat
	}
	innerDest := pathFields[0]
	innerPath := pathFields[1:]

	inner, err := Decode(innerSrc, innerDest, innerInfo, now)
	if err != nil {
		return nil, err
	}

	return &ThirdParty{
		InnerSrc:  strings.ToUpper(innerSrc),
		InnerDest: strings.ToUpper(innerDest),
		InnerPath: innerPath,
		Inner:     inner,
	}, nil
}
