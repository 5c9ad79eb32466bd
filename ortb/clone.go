package ortb

import (
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/util/ptrutil"
)

func CloneApp(s *openrtb2.App) *openrtb2.App {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.SectionCat = cloneSlice(s.SectionCat)
	c.PageCat = cloneSlice(s.PageCat)
	c.Publisher = ClonePublisher(s.Publisher)
	c.Content = CloneContent(s.Content)
	c.KwArray = cloneSlice(s.KwArray)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func ClonePublisher(s *openrtb2.Publisher) *openrtb2.Publisher {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneContent(s *openrtb2.Content) *openrtb2.Content {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Producer = CloneProducer(s.Producer)
	c.Cat = cloneSlice(s.Cat)
	c.ProdQ = ptrutil.Clone(s.ProdQ)
	c.VideoQuality = ptrutil.Clone(s.VideoQuality)
	c.KwArray = cloneSlice(s.KwArray)
	c.Data = CloneDataSlice(s.Data)
	c.Network = CloneNetwork(s.Network)
	c.Channel = CloneChannel(s.Channel)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneProducer(s *openrtb2.Producer) *openrtb2.Producer {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneDataSlice(s []openrtb2.Data) []openrtb2.Data {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.Data, len(s))
	for i, d := range s {
		c[i] = CloneData(d)
	}

	return c
}

func CloneData(s openrtb2.Data) openrtb2.Data {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.Segment = CloneSegmentSlice(s.Segment)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func CloneSegmentSlice(s []openrtb2.Segment) []openrtb2.Segment {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.Segment, len(s))
	for i, d := range s {
		c[i] = CloneSegment(d)
	}

	return c
}

func CloneSegment(s openrtb2.Segment) openrtb2.Segment {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func CloneNetwork(s *openrtb2.Network) *openrtb2.Network {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneChannel(s *openrtb2.Channel) *openrtb2.Channel {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneSite(s *openrtb2.Site) *openrtb2.Site {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Cat = cloneSlice(s.Cat)
	c.SectionCat = cloneSlice(s.SectionCat)
	c.PageCat = cloneSlice(s.PageCat)
	c.Publisher = ClonePublisher(s.Publisher)
	c.Content = CloneContent(s.Content)
	c.KwArray = cloneSlice(s.KwArray)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneDOOH(s *openrtb2.DOOH) *openrtb2.DOOH {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.VenueType = cloneSlice(s.VenueType)
	c.Publisher = ClonePublisher(s.Publisher)
	c.Content = CloneContent(s.Content)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneUser(s *openrtb2.User) *openrtb2.User {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.KwArray = cloneSlice(s.KwArray)
	c.Geo = CloneGeo(s.Geo)
	c.Data = CloneDataSlice(s.Data)
	c.EIDs = CloneEIDSlice(s.EIDs)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneDevice(s *openrtb2.Device) *openrtb2.Device {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.SUA = CloneUserAgent(s.SUA)
	c.Geo = CloneGeo(s.Geo)
	c.DNT = ptrutil.Clone(s.DNT)
	c.Lmt = ptrutil.Clone(s.Lmt)
	c.JS = ptrutil.Clone(s.JS)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneUserAgent(s *openrtb2.UserAgent) *openrtb2.UserAgent {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Browsers = CloneBrandVersionSlice(s.Browsers)
	c.Platform = CloneBrandVersion(s.Platform)
	c.Mobile = ptrutil.Clone(s.Mobile)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneBrandVersionSlice(s []openrtb2.BrandVersion) []openrtb2.BrandVersion {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.BrandVersion, len(s))
	for i, d := range s {
		bv := CloneBrandVersion(&d)
		c[i] = *bv
	}

	return c
}

func CloneBrandVersion(s *openrtb2.BrandVersion) *openrtb2.BrandVersion {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Version = cloneSlice(s.Version)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneGeo(s *openrtb2.Geo) *openrtb2.Geo {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Lat = ptrutil.Clone(s.Lat)
	c.Lon = ptrutil.Clone(s.Lon)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneEIDSlice(s []openrtb2.EID) []openrtb2.EID {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.EID, len(s))
	for i, d := range s {
		c[i] = CloneEID(d)
	}

	return c
}

func CloneEID(s openrtb2.EID) openrtb2.EID {
	// Shallow Copy (Value Fields)
	// - Already occurred implicitly in the method call.

	// Deep Copy (Pointers)
	s.UIDs = CloneUIDSlice(s.UIDs)
	s.Ext = cloneSlice(s.Ext)

	return s
}

func CloneUIDSlice(s []openrtb2.UID) []openrtb2.UID {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.UID, len(s))
	for i, d := range s {
		d.Ext = cloneSlice(d.Ext)
		c[i] = d
	}

	return c
}

func CloneSource(s *openrtb2.Source) *openrtb2.Source {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.SChain = CloneSupplyChain(s.SChain)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneSupplyChain(s *openrtb2.SupplyChain) *openrtb2.SupplyChain {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Nodes = make([]openrtb2.SupplyChainNode, len(s.Nodes))
	for i, node := range s.Nodes {
		node.HP = ptrutil.Clone(node.HP)
		node.Ext = cloneSlice(node.Ext)
		c.Nodes[i] = node
	}
	c.Ext = cloneSlice(s.Ext)

	return &c
}

func CloneRegs(s *openrtb2.Regs) *openrtb2.Regs {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.GDPR = ptrutil.Clone(s.GDPR)
	c.GPPSID = cloneSlice(s.GPPSID)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

// CloneBidRequest copies the request deeply enough that a per-bidder request may be rewritten
// without touching the original: the imps and every top level object are copied.
func CloneBidRequest(s *openrtb2.BidRequest) *openrtb2.BidRequest {
	if s == nil {
		return nil
	}

	// Shallow Copy (Value Fields)
	c := *s

	// Deep Copy (Pointers)
	c.Imp = CloneImpSlice(s.Imp)
	c.Site = CloneSite(s.Site)
	c.App = CloneApp(s.App)
	c.DOOH = CloneDOOH(s.DOOH)
	c.Device = CloneDevice(s.Device)
	c.User = CloneUser(s.User)
	c.Source = CloneSource(s.Source)
	c.Regs = CloneRegs(s.Regs)
	c.WSeat = cloneSlice(s.WSeat)
	c.BSeat = cloneSlice(s.BSeat)
	c.WLang = cloneSlice(s.WLang)
	c.WLangB = cloneSlice(s.WLangB)
	c.Cur = cloneSlice(s.Cur)
	c.BCat = cloneSlice(s.BCat)
	c.BAdv = cloneSlice(s.BAdv)
	c.BApp = cloneSlice(s.BApp)
	c.Ext = cloneSlice(s.Ext)

	return &c
}

// CloneImpSlice copies the imps and their ext. Media objects stay shared and must be copied
// before they are modified.
func CloneImpSlice(s []openrtb2.Imp) []openrtb2.Imp {
	if s == nil {
		return nil
	}

	c := make([]openrtb2.Imp, len(s))
	for i, imp := range s {
		imp.Secure = ptrutil.Clone(imp.Secure)
		imp.Ext = cloneSlice(imp.Ext)
		c[i] = imp
	}

	return c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}

	c := make([]T, len(s))
	copy(c, s)

	return c
}
