package ortb

import (
	"fmt"

	"github.com/prebid/openrtb/v20/openrtb2"
)

// sizeField is a numeric property which OpenRTB allows to be absent but never negative.
type sizeField struct {
	name  string
	value *int64
}

func firstNegative(fields ...sizeField) string {
	for _, f := range fields {
		if f.value != nil && *f.value < 0 {
			return f.name
		}
	}
	return ""
}

func isInterstitial(imp *openrtb2.Imp) bool {
	return imp.Instl == 1
}

func validateBanner(banner *openrtb2.Banner, impIndex int, interstitial bool) error {
	if banner == nil {
		return nil
	}

	if name := firstNegative(sizeField{"w", banner.W}, sizeField{"h", banner.H}); name != "" {
		return fmt.Errorf("request.imp[%d].banner.%s must be a positive number", impIndex, name)
	}

	// wmin, wmax, hmin and hmax were deprecated by 2.5 in favour of format
	for _, deprecated := range []struct {
		name  string
		value int64
	}{{"wmin", banner.WMin}, {"wmax", banner.WMax}, {"hmin", banner.HMin}, {"hmax", banner.HMax}} {
		if deprecated.value != 0 {
			return fmt.Errorf("request.imp[%d].banner uses unsupported property: %q. Use the \"format\" array instead.", impIndex, deprecated.name)
		}
	}

	hasRootSize := banner.W != nil && banner.H != nil && *banner.W > 0 && *banner.H > 0
	if !hasRootSize && len(banner.Format) == 0 && !interstitial {
		return fmt.Errorf("request.imp[%d].banner has no sizes. Define \"w\" and \"h\", or include \"format\" elements.", impIndex)
	}

	for i := range banner.Format {
		if err := validateFormat(&banner.Format[i], impIndex, i); err != nil {
			return err
		}
	}
	return nil
}

// validateFormat requires a format to be either a fixed {w, h} size or a flexible
// {wmin, wratio, hratio} one.
func validateFormat(format *openrtb2.Format, impIndex, formatIndex int) error {
	name := firstNegative(
		sizeField{"w", &format.W},
		sizeField{"h", &format.H},
		sizeField{"wratio", &format.WRatio},
		sizeField{"hratio", &format.HRatio},
		sizeField{"wmin", &format.WMin},
	)
	if name != "" {
		return fmt.Errorf("request.imp[%d].banner.format[%d].%s must be a positive number", impIndex, formatIndex, name)
	}

	fixed := format.W != 0 || format.H != 0
	flexible := format.WMin != 0 || format.WRatio != 0 || format.HRatio != 0
	switch {
	case fixed && flexible:
		return fmt.Errorf("Request imp[%d].banner.format[%d] should define *either* {w, h} *or* {wmin, wratio, hratio}, but not both. If both are valid, send two \"format\" objects in the request.", impIndex, formatIndex)
	case !fixed && !flexible:
		return fmt.Errorf("Request imp[%d].banner.format[%d] should define *either* {w, h} (for static size requirements) *or* {wmin, wratio, hratio} (for flexible sizes) to be non-zero.", impIndex, formatIndex)
	case fixed && (format.W == 0 || format.H == 0):
		return fmt.Errorf("Request imp[%d].banner.format[%d] must define non-zero \"h\" and \"w\" properties.", impIndex, formatIndex)
	case flexible && (format.WMin == 0 || format.WRatio == 0 || format.HRatio == 0):
		return fmt.Errorf("Request imp[%d].banner.format[%d] must define non-zero \"wmin\", \"wratio\", and \"hratio\" properties.", impIndex, formatIndex)
	}
	return nil
}

func validateVideo(video *openrtb2.Video, impIndex int) error {
	if video == nil {
		return nil
	}

	if len(video.MIMEs) == 0 {
		return fmt.Errorf("request.imp[%d].video.mimes must contain at least one supported MIME type", impIndex)
	}

	name := firstNegative(
		sizeField{"w", video.W},
		sizeField{"h", video.H},
		sizeField{"minbitrate", &video.MinBitRate},
		sizeField{"maxbitrate", &video.MaxBitRate},
	)
	if name != "" {
		return fmt.Errorf("request.imp[%d].video.%s must be a positive number", impIndex, name)
	}
	return nil
}

func validateAudio(audio *openrtb2.Audio, impIndex int) error {
	if audio != nil && len(audio.MIMEs) == 0 {
		return fmt.Errorf("request.imp[%d].audio.mimes must contain at least one supported MIME type", impIndex)
	}
	return nil
}

func validateNative(native *openrtb2.Native, impIndex int) error {
	if native != nil && native.Request == "" {
		return fmt.Errorf("request.imp[%d].native missing required property \"request\"", impIndex)
	}
	return nil
}
