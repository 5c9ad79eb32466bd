package privacy

import (
	"github.com/prebid/prebid-auction/config"
)

// ActivityResult is the opinion of one rule on an activity.
type ActivityResult int

const (
	ActivityAbstain ActivityResult = iota
	ActivityAllow
	ActivityDeny
)

const defaultActivityResult = true

// ActivityControl decides whether an activity may run for a component. An activity without a
// plan is allowed.
type ActivityControl struct {
	plans map[Activity]ActivityPlan
}

func NewActivityControl(cfg *config.AccountPrivacy) ActivityControl {
	if cfg == nil || cfg.AllowActivities == nil {
		return ActivityControl{}
	}

	activities := cfg.AllowActivities
	configured := map[Activity]config.Activity{
		ActivityFetchBids:                activities.FetchBids,
		ActivityTransmitUserFPD:          activities.TransmitUserFPD,
		ActivityTransmitPreciseGeo:       activities.TransmitPreciseGeo,
		ActivityTransmitUniqueRequestIDs: activities.TransmitUniqueRequestIds,
		ActivityTransmitTIDs:             activities.TransmitTids,
	}

	plans := make(map[Activity]ActivityPlan, len(configured))
	for activity, activityCfg := range configured {
		plans[activity] = newActivityPlan(activityCfg)
	}
	return ActivityControl{plans: plans}
}

func newActivityPlan(activity config.Activity) ActivityPlan {
	plan := ActivityPlan{defaultResult: defaultActivityResult}
	if activity.Default != nil {
		plan.defaultResult = *activity.Default
	}

	for _, rule := range activity.Rules {
		result := ActivityDeny
		if rule.Allow {
			result = ActivityAllow
		}
		plan.rules = append(plan.rules, ConditionRule{
			result:        result,
			componentName: rule.Condition.ComponentName,
			componentType: rule.Condition.ComponentType,
		})
	}
	return plan
}

// Allow evaluates the rules of the activity in order. The first rule with an opinion decides,
// otherwise the activity default applies.
func (e ActivityControl) Allow(activity Activity, target Component) bool {
	if plan, ok := e.plans[activity]; ok {
		return plan.Evaluate(target)
	}
	return defaultActivityResult
}

type ActivityPlan struct {
	defaultResult bool
	rules         []Rule
}

func (p ActivityPlan) Evaluate(target Component) bool {
	for _, rule := range p.rules {
		if result := rule.Evaluate(target); result != ActivityAbstain {
			return result == ActivityAllow
		}
	}
	return p.defaultResult
}
