package ortb

import (
	"encoding/json"

	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/tidwall/sjson"
)

// ConvertDownTo25 rewrites an OpenRTB 2.6 request into its 2.5 form for bidders which declare
// the older version. Fields promoted to the root object in 2.6 move back into their ext
// objects and fields introduced by 2.6 are removed. Touched objects are copied before they
// are modified so objects shared with other requests are left alone.
func ConvertDownTo25(r *openrtb2.BidRequest) error {
	if err := moveSupplyChainFrom26To25(r); err != nil {
		return err
	}
	if err := moveRegsFrom26To25(r); err != nil {
		return err
	}
	if err := moveUserFrom26To25(r); err != nil {
		return err
	}
	if err := moveRewardedFrom26ToPrebidExt(r); err != nil {
		return err
	}

	clear26Fields(r)
	return nil
}

// moveSupplyChainFrom26To25 moves source.schain to source.ext.schain.
func moveSupplyChainFrom26To25(r *openrtb2.BidRequest) error {
	if r.Source == nil || r.Source.SChain == nil {
		return nil
	}

	source := *r.Source
	ext, err := setExtField(source.Ext, "schain", source.SChain)
	if err != nil {
		return err
	}
	source.Ext = ext
	source.SChain = nil
	r.Source = &source
	return nil
}

// moveRegsFrom26To25 moves regs.gdpr and regs.us_privacy to regs.ext.
func moveRegsFrom26To25(r *openrtb2.BidRequest) error {
	if r.Regs == nil || (r.Regs.GDPR == nil && r.Regs.USPrivacy == "") {
		return nil
	}

	regs := *r.Regs
	if regs.GDPR != nil {
		ext, err := setExtField(regs.Ext, "gdpr", *regs.GDPR)
		if err != nil {
			return err
		}
		regs.Ext = ext
		regs.GDPR = nil
	}
	if regs.USPrivacy != "" {
		ext, err := setExtField(regs.Ext, "us_privacy", regs.USPrivacy)
		if err != nil {
			return err
		}
		regs.Ext = ext
		regs.USPrivacy = ""
	}
	r.Regs = &regs
	return nil
}

// moveUserFrom26To25 moves user.consent and user.eids to user.ext.
func moveUserFrom26To25(r *openrtb2.BidRequest) error {
	if r.User == nil || (r.User.Consent == "" && len(r.User.EIDs) == 0) {
		return nil
	}

	user := *r.User
	if user.Consent != "" {
		ext, err := setExtField(user.Ext, "consent", user.Consent)
		if err != nil {
			return err
		}
		user.Ext = ext
		user.Consent = ""
	}
	if len(user.EIDs) > 0 {
		ext, err := setExtField(user.Ext, "eids", user.EIDs)
		if err != nil {
			return err
		}
		user.Ext = ext
		user.EIDs = nil
	}
	r.User = &user
	return nil
}

// moveRewardedFrom26ToPrebidExt moves imp.rwdd to imp.ext.prebid.is_rewarded_inventory.
func moveRewardedFrom26ToPrebidExt(r *openrtb2.BidRequest) error {
	var imps []openrtb2.Imp
	for i, imp := range r.Imp {
		if imp.Rwdd == 0 {
			continue
		}
		if imps == nil {
			imps = append([]openrtb2.Imp(nil), r.Imp...)
		}
		ext, err := setExtField(imp.Ext, "prebid.is_rewarded_inventory", imp.Rwdd)
		if err != nil {
			return err
		}
		imps[i].Ext = ext
		imps[i].Rwdd = 0
	}
	if imps != nil {
		r.Imp = imps
	}
	return nil
}

func clear26Fields(r *openrtb2.BidRequest) {
	r.WLangB = nil
	r.CatTax = 0

	if r.App != nil {
		app := *r.App
		app.CatTax = 0
		app.KwArray = nil
		app.Content = clear26Content(app.Content)
		app.Publisher = clear26Publisher(app.Publisher)
		r.App = &app
	}

	if r.Site != nil {
		site := *r.Site
		site.CatTax = 0
		site.KwArray = nil
		site.Content = clear26Content(site.Content)
		site.Publisher = clear26Publisher(site.Publisher)
		r.Site = &site
	}

	if r.Device != nil && (r.Device.LangB != "" || r.Device.SUA != nil) {
		device := *r.Device
		device.LangB = ""
		device.SUA = nil
		r.Device = &device
	}

	if r.User != nil && r.User.KwArray != nil {
		user := *r.User
		user.KwArray = nil
		r.User = &user
	}

	if len(r.Imp) > 0 {
		imps := append([]openrtb2.Imp(nil), r.Imp...)
		for i := range imps {
			imps[i].SSAI = 0
			if imps[i].Audio != nil {
				audio := *imps[i].Audio
				audio.PodDur = 0
				audio.RqdDurs = nil
				audio.PodID = ""
				audio.PodSeq = 0
				audio.SlotInPod = 0
				audio.MinCPMPerSec = 0
				imps[i].Audio = &audio
			}
			if imps[i].Video != nil {
				video := *imps[i].Video
				video.MaxSeq = 0
				video.PodDur = 0
				video.RqdDurs = nil
				video.PodID = ""
				video.PodSeq = 0
				video.SlotInPod = 0
				video.MinCPMPerSec = 0
				imps[i].Video = &video
			}
		}
		r.Imp = imps
	}
}

func clear26Content(content *openrtb2.Content) *openrtb2.Content {
	if content == nil {
		return nil
	}
	c := *content
	c.CatTax = 0
	c.KwArray = nil
	c.LangB = ""
	c.Network = nil
	c.Channel = nil
	if c.Producer != nil {
		producer := *c.Producer
		producer.CatTax = 0
		c.Producer = &producer
	}
	return &c
}

func clear26Publisher(publisher *openrtb2.Publisher) *openrtb2.Publisher {
	if publisher == nil {
		return nil
	}
	p := *publisher
	p.CatTax = 0
	return &p
}

// setExtField writes value at the dotted path of ext, creating the object when ext is empty.
func setExtField(ext json.RawMessage, path string, value interface{}) (json.RawMessage, error) {
	if len(ext) == 0 {
		ext = json.RawMessage(`{}`)
	} else if !json.Valid(ext) {
		return nil, &errortypes.FailedToUnmarshal{Message: "invalid json in ext while setting " + path}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	updated, err := sjson.SetRawBytes(ext, path, raw)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
