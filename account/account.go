package account

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/glog"
	"github.com/prebid/prebid-auction/config"
	"github.com/prebid/prebid-auction/errortypes"
	"github.com/prebid/prebid-auction/metrics"
	"github.com/prebid/prebid-auction/stored_requests"
)

// GetAccount looks up the config.Account object referenced by the given accountID, with access rules applied.
// An account id the fetcher does not know resolves to the host account defaults.
func GetAccount(ctx context.Context, cfg *config.Configuration, fetcher stored_requests.AccountFetcher, accountID string) (account *config.Account, errs []error) {
	if accountID == "" {
		accountID = metrics.PublisherUnknown
	}
	for _, blocked := range cfg.BlockedAccounts {
		if blocked == accountID {
			return nil, []error{&errortypes.AccountDisabled{
				Message: fmt.Sprintf("Prebid-server has disabled Account ID: %s, please reach out to the prebid server host.", accountID),
			}}
		}
	}
	if cfg.AccountRequired && accountID == metrics.PublisherUnknown {
		return nil, []error{&errortypes.AcctRequired{
			Message: "Prebid-server has been configured to discard requests without a valid Account ID. Please reach out to the prebid server host.",
		}}
	}

	if accountJSON, accErrs := fetcher.FetchAccount(ctx, cfg.AccountDefaultsJSON(), accountID); len(accErrs) > 0 || accountJSON == nil {
		// accountID does not reference a valid account
		for _, e := range accErrs {
			if _, ok := e.(stored_requests.NotFoundError); !ok {
				errs = append(errs, e)
			}
		}
		if cfg.AccountRequired && cfg.AccountDefaults.Disabled {
			errs = append(errs, &errortypes.AcctRequired{
				Message: "Prebid-server could not verify the Account ID. Please reach out to the prebid server host.",
			})
			return nil, errs
		}
		// copy the defaults so the shared config is never written through
		pubAccount := cfg.AccountDefaults
		pubAccount.ID = accountID
		account = &pubAccount
	} else {
		// the fetcher has already merged the account over the defaults
		account = &config.Account{}
		if err := json.Unmarshal(accountJSON, account); err != nil {
			glog.Warningf("Malformed account config for %s: %v", accountID, err)
			return nil, []error{&errortypes.MalformedAcct{
				Message: fmt.Sprintf("The prebid-server account config for account id \"%s\" is malformed. Please reach out to the prebid server host.", accountID),
			}}
		}
		// Fill in ID if needed, so it can be left out of account definition
		if len(account.ID) == 0 {
			account.ID = accountID
		}
	}

	if account.Disabled {
		errs = append(errs, &errortypes.AccountDisabled{
			Message: fmt.Sprintf("Prebid-server has disabled Account ID: %s, please reach out to the prebid server host.", accountID),
		})
		return nil, errs
	}

	return account, errs
}
