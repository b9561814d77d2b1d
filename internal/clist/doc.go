// Package clist is the contest provider client for the clist.by v1 API.
//
// One FetchContests call maps to one logical GET (transient failures are
// retried a bounded number of times inside the per-call timeout). Requests
// are spaced by a token bucket shared by every caller of the Client.
package clist
