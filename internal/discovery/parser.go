package discovery

import (
	"encoding/xml"
	"strings"
)

// DeviceDescription is the subset of a UPnP device description we use.
type DeviceDescription struct {
	FriendlyName string
	Manufacturer string
	ModelName    string
	ModelNumber  string
	SerialNumber string
	UDN          string
}

// IsDuneHD reports whether the description belongs to a Dune-HD player.
func (d DeviceDescription) IsDuneHD() bool {
	for _, field := range []string{d.Manufacturer, d.ModelName, d.FriendlyName} {
		if strings.Contains(strings.ToLower(field), "dune") {
			return true
		}
	}
	return false
}

func ParseDeviceDescription(xmlPayload []byte) (*DeviceDescription, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(xmlPayload)))
	var desc DeviceDescription
	sawDevice := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var target *string
		switch se.Name.Local {
		case "device":
			sawDevice = true
		case "friendlyName":
			target = &desc.FriendlyName
		case "manufacturer":
			target = &desc.Manufacturer
		case "modelName":
			target = &desc.ModelName
		case "modelNumber":
			target = &desc.ModelNumber
		case "serialNumber", "serialNum":
			target = &desc.SerialNumber
		case "UDN":
			target = &desc.UDN
		}
		// Embedded devices repeat these fields; keep the root device's values.
		if target == nil || *target != "" {
			continue
		}
		var value string
		if err := decoder.DecodeElement(&value, &se); err == nil {
			*target = strings.TrimSpace(value)
		}
	}

	if !sawDevice {
		return nil, nil
	}
	desc.UDN = strings.TrimPrefix(desc.UDN, "uuid:")
	return &desc, nil
}
