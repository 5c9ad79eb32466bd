package gdpr

import (
	"fmt"

	"github.com/prebid/go-gdpr/api"
	"github.com/prebid/go-gdpr/vendorconsent"
)

// parsedConsent holds the version information of a consent string. Purpose and vendor
// decisions are left to the external TCF engine.
type parsedConsent struct {
	encodingVersion uint8
	specVersion     uint16
	listVersion     uint16
}

// An ErrorMalformedConsent is returned when the consent string could not be parsed or carries
// unsupported versions.
type ErrorMalformedConsent struct {
	Consent string
	Cause   error
}

func (e *ErrorMalformedConsent) Error() string {
	return "malformed consent string " + e.Consent + ": " + e.Cause.Error()
}

// parseConsent parses and validates the specified consent string.
func parseConsent(consent string) (parsedConsent, error) {
	pc := parsedConsent{}

	parsed, err := vendorconsent.ParseString(consent)
	if err != nil {
		return pc, &ErrorMalformedConsent{
			Consent: consent,
			Cause:   err,
		}
	}

	if err := validateVersions(parsed); err != nil {
		return pc, &ErrorMalformedConsent{
			Consent: consent,
			Cause:   err,
		}
	}

	pc.encodingVersion = parsed.Version()
	pc.specVersion = getSpecVersion(parsed.TCFPolicyVersion())
	pc.listVersion = parsed.VendorListVersion()

	return pc, nil
}

// validateVersions ensures that the version fields in the consent string contain supported
// values. TCF v1 strings are rejected.
func validateVersions(pc api.VendorConsents) error {
	version := pc.Version()
	if version != 2 {
		return fmt.Errorf("invalid encoding format version: %d", version)
	}
	return nil
}

// getSpecVersion maps the TCF policy version to the GVL specification version.
func getSpecVersion(policyVersion uint8) uint16 {
	if policyVersion >= 4 {
		return 3
	}
	return 2
}
