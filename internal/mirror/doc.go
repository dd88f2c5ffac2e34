// Package mirror crawls a website breadth-first and stores every page and
// asset it reaches into a local tree laid out by the mapping package.
//
// The Engine owns a bounded worker pool. Pages are admitted through a
// Frontier that reserves a budget slot before each fetch, so the number of
// stored pages never exceeds the configured maximum no matter how many
// workers are running. Assets are not counted against that budget.
//
// A page that redirects within the site is stored under its final URL, where
// its relative references resolve, and the requested path gets a small
// meta-refresh page pointing at it.
package mirror
