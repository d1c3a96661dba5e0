/*
Package validate implements Conflux's pre-acceptance Validator:
NodeValidator, TimeoutValidator, and ClusterValidator each check one
facet, and ComprehensiveValidator composes all three into the single call
pkg/node makes before bootstrapping or reconfiguring a cluster.

Node id and timing checks lean on github.com/go-playground/validator/v10
for the declarative numeric/length rules (gt=0, max=N); the host:port and
IP/DNS shape of an address is checked by hand with net.SplitHostPort,
since that structural rule isn't a single built-in tag.
*/
package validate
