package config

// Hooks configures the hook stages run around the auction. Hooks are looked up by module code in
// the module registry the server is started with.
type Hooks struct {
	Enabled           bool              `mapstructure:"enabled"`
	HostExecutionPlan HookExecutionPlan `mapstructure:"host_execution_plan"`
	// DefaultAccountExecutionPlan is used for accounts which define no plan of their own
	DefaultAccountExecutionPlan HookExecutionPlan `mapstructure:"default_account_execution_plan"`
}

// AccountHooks holds the account specific execution plan.
type AccountHooks struct {
	ExecutionPlan HookExecutionPlan `mapstructure:"execution_plan" json:"execution_plan"`
}

type HookExecutionPlan struct {
	Endpoints map[string]HookEndpoint `mapstructure:"endpoints" json:"endpoints"`
}

type HookEndpoint struct {
	Stages map[string]HookStage `mapstructure:"stages" json:"stages"`
}

type HookStage struct {
	Groups []HookExecutionGroup `mapstructure:"groups" json:"groups"`
}

// HookExecutionGroup lists hooks run concurrently. Groups of a stage run one after another.
type HookExecutionGroup struct {
	// Timeout specified in milliseconds
	Timeout      int           `mapstructure:"timeout" json:"timeout"`
	HookSequence []HookReference `mapstructure:"hook_sequence" json:"hook_sequence"`
}

type HookReference struct {
	// ModuleCode is a composite value in the format: {vendor_name}.{module_name}
	ModuleCode string `mapstructure:"module_code" json:"module_code"`
	// HookImplCode is an arbitrary value, used to identify hook when sending metrics, storing in debug, etc.
	HookImplCode string `mapstructure:"hook_impl_code" json:"hook_impl_code"`
}
