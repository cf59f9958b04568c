// Package scrape implements the property record collection that runs
// inside scrape tasks: address search submission, record page
// navigation, and parsing of the record tables into structured data.
package scrape
