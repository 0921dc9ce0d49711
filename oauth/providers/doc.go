// Package providers defines the contract every external identity provider
// adapter implements, the closed set of supported providers and the registry
// built once at startup from configuration presence.
//
// Adapters live in subpackages (google, github, microsoft, apple). An adapter
// absent from the [Registry] is unconfigured; there is no present-but-failing
// state.
package providers
