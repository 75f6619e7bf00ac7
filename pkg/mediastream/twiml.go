package mediastream

import (
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
)

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConnectStreamTwiML renders the answer document that tells the
// provider to open a media stream to url for the rest of the call.
// Params come back verbatim in the start frame's customParameters.
func ConnectStreamTwiML(url string, params map[string]string) ([]byte, error) {
	doc := twimlResponse{}
	doc.Connect.Stream.URL = url
	for _, name := range slices.Sorted(maps.Keys(params)) {
		doc.Connect.Stream.Parameters = append(doc.Connect.Stream.Parameters, twimlParameter{
			Name:  name,
			Value: params[name],
		})
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("mediastream: render twiml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
