// Package promo holds the domain records shared by the engine, the store
// and the dispatch channels: banks, promotional activities with their
// recurrence rules, and the reminder occurrences the engine produces.
package promo
