package floors

import (
	"fmt"
	"strings"

	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/openrtb_ext"
	"golang.org/x/text/currency"
)

var validSchemaFields = map[string]struct{}{
	SiteDomain: {},
	PubDomain:  {},
	Domain:     {},
	Bundle:     {},
	Channel:    {},
	MediaType:  {},
	Size:       {},
	GptSlot:    {},
	PbAdSlot:   {},
	Country:    {},
	DeviceType: {},
}

// validateFloorParams checks the root level floor parameters
func validateFloorParams(extFloorRules *openrtb_ext.PriceFloorRules) error {
	if extFloorRules.Data != nil && len(extFloorRules.Data.Currency) > 0 {
		if _, err := currency.ParseISO(extFloorRules.Data.Currency); err != nil {
			return fmt.Errorf("Invalid Currency Code '%s' in floors data", extFloorRules.Data.Currency)
		}
	}

	if len(extFloorRules.FloorMinCur) > 0 {
		if _, err := currency.ParseISO(extFloorRules.FloorMinCur); err != nil {
			return fmt.Errorf("Invalid FloorMinCur '%s'", extFloorRules.FloorMinCur)
		}
	}

	if extFloorRules.FloorMin < 0 {
		return fmt.Errorf("Invalid FloorMin = '%v', value should be >= 0", extFloorRules.FloorMin)
	}

	if extFloorRules.SkipRate < skipRateMin || extFloorRules.SkipRate > skipRateMax {
		return fmt.Errorf("Invalid SkipRate = '%v' at ext.prebid.floors.skiprate", extFloorRules.SkipRate)
	}

	if extFloorRules.Data != nil && (extFloorRules.Data.SkipRate < skipRateMin || extFloorRules.Data.SkipRate > skipRateMax) {
		return fmt.Errorf("Invalid SkipRate = '%v' at ext.prebid.floors.data.skiprate", extFloorRules.Data.SkipRate)
	}

	return nil
}

// selectValidFloorModelGroups drops model groups with out of range values or too many rules for the account
func selectValidFloorModelGroups(modelGroups []openrtb_ext.PriceFloorModelGroup, account config.Account) ([]openrtb_ext.PriceFloorModelGroup, []error) {
	var errs []error
	var validModelGroups []openrtb_ext.PriceFloorModelGroup
	for _, modelGroup := range modelGroups {
		if modelGroup.SkipRate < skipRateMin || modelGroup.SkipRate > skipRateMax {
			errs = append(errs, fmt.Errorf("Invalid Floor Model = '%v' due to SkipRate = '%v'", modelGroup.ModelVersion, modelGroup.SkipRate))
			continue
		}

		if modelGroup.ModelWeight != 0 && (modelGroup.ModelWeight < modelWeightMin || modelGroup.ModelWeight > modelWeightMax) {
			errs = append(errs, fmt.Errorf("Invalid Floor Model = '%v' due to ModelWeight = '%v'", modelGroup.ModelVersion, modelGroup.ModelWeight))
			continue
		}

		if modelGroup.Default < 0 {
			errs = append(errs, fmt.Errorf("Invalid Floor Model = '%v' due to Default = '%v' is less than 0", modelGroup.ModelVersion, modelGroup.Default))
			continue
		}

		if account.PriceFloors.MaxRule > 0 && len(modelGroup.Values) > account.PriceFloors.MaxRule {
			errs = append(errs, fmt.Errorf("Invalid Floor Model = '%v' due to number of rules = '%v' is greater than limit '%v'", modelGroup.ModelVersion, len(modelGroup.Values), account.PriceFloors.MaxRule))
			continue
		}

		if len(modelGroup.Schema.Fields) == 0 && len(modelGroup.Values) > 0 {
			errs = append(errs, fmt.Errorf("Invalid Floor Model = '%v' due to missing schema fields", modelGroup.ModelVersion))
			continue
		}

		if field, ok := unknownSchemaField(modelGroup.Schema.Fields); ok {
			errs = append(errs, fmt.Errorf("Invalid Floor Model = '%v' due to unsupported schema field = '%s'", modelGroup.ModelVersion, field))
			continue
		}

		validModelGroups = append(validModelGroups, modelGroup)
	}
	return validModelGroups, errs
}

func unknownSchemaField(fields []string) (string, bool) {
	for _, field := range fields {
		if _, ok := validSchemaFields[field]; !ok {
			return field, true
		}
	}
	return "", false
}

// validateFloorRulesAndLowerValidRuleKey returns a new map holding the lowercased keys of rules
// whose field count matches the schema
func validateFloorRulesAndLowerValidRuleKey(schema openrtb_ext.PriceFloorSchema, delimiter string, ruleValues map[string]float64) (map[string]float64, []error) {
	var errs []error
	validRules := make(map[string]float64, len(ruleValues))
	for key, val := range ruleValues {
		parsedKey := strings.Split(key, delimiter)
		if len(parsedKey) != len(schema.Fields) {
			errs = append(errs, fmt.Errorf("Invalid Floor Rule = '%s' for Schema Fields = '%v'", key, schema.Fields))
			continue
		}
		if val < 0 {
			errs = append(errs, fmt.Errorf("Invalid Floor Rule = '%s' due to value = '%v' is less than 0", key, val))
			continue
		}
		validRules[strings.ToLower(key)] = val
	}
	return validRules, errs
}
