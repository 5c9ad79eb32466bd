package events

import (
	"fmt"
	"net/url"
	"strconv"
)

// EventType enumerates the events an ad can notify.
type EventType string

const (
	Win EventType = "win"
	Imp EventType = "imp"
)

const (
	// Required
	TemplateUrl        = "%v/event?t=%v&b=%v&a=%v"
	TypeParameter      = "t"
	BidIdParameter     = "b"
	AccountIdParameter = "a"

	// Optional
	BidderParameter      = "bidder"
	TimestampParameter   = "ts"
	IntegrationParameter = "int"
)

// EventRequest holds everything an event url identifies.
type EventRequest struct {
	Type        EventType
	BidID       string
	AccountID   string
	Bidder      string
	Timestamp   int64
	Integration string
}

// EventRequestToUrl converts an EventRequest to the url the creative calls.
func EventRequestToUrl(externalUrl string, request *EventRequest) string {
	s := fmt.Sprintf(TemplateUrl, externalUrl, request.Type, url.QueryEscape(request.BidID), url.QueryEscape(request.AccountID))

	return s + optionalParameters(request)
}

func optionalParameters(request *EventRequest) string {
	r := url.Values{}

	if request.Timestamp > 0 {
		r.Add(TimestampParameter, strconv.FormatInt(request.Timestamp, 10))
	}
	if request.Bidder != "" {
		r.Add(BidderParameter, request.Bidder)
	}
	if request.Integration != "" {
		r.Add(IntegrationParameter, request.Integration)
	}

	opt := r.Encode()
	if opt != "" {
		return "&" + opt
	}
	return opt
}

// EventURLs are the win and imp notification urls of a bid.
type EventURLs struct {
	Win string
	Imp string
}

// Builder creates the event urls of the bids of one auction.
type Builder struct {
	ExternalURL string
	AccountID   string
	// Timestamp is the auction start in milliseconds.
	Timestamp   int64
	Integration string
}

// CreateEvent returns the win and imp urls of the bid, bidID being the generated id when there is one.
func (b Builder) CreateEvent(bidID, bidder string) EventURLs {
	request := &EventRequest{
		BidID:       bidID,
		AccountID:   b.AccountID,
		Bidder:      bidder,
		Timestamp:   b.Timestamp,
		Integration: b.Integration,
	}

	request.Type = Win
	win := EventRequestToUrl(b.ExternalURL, request)
	request.Type = Imp
	imp := EventRequestToUrl(b.ExternalURL, request)

	return EventURLs{Win: win, Imp: imp}
}
