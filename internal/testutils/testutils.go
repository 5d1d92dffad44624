// Package testutils holds fixtures and helpers shared by the tests.
package testutils

import (
	"fmt"

	"github.com/l7mp/dgroup/pkg/change"
)

// Element is a measured value of an item within a capture. Items are keyed by (item, capture).
type Element struct {
	ItemName    string
	CaptureName string
	Value       float64
	Label       string
}

// Key returns the identity of the element.
func (e Element) Key() string { return e.ItemName + "/" + e.CaptureName }

func (e Element) String() string {
	return fmt.Sprintf("Key: (%s-%s). Value: %v", e.ItemName, e.CaptureName, e.Value)
}

// Captures lists the capture names of the value fixture.
var Captures = []string{"A", "B", "C"}

// Values returns four items (1..4) in each of the captures A, B and C, all with value 1.
func Values() []Element {
	ret := []Element{}
	for _, c := range Captures {
		for i := 1; i <= 4; i++ {
			ret = append(ret, Element{ItemName: fmt.Sprintf("%d", i), CaptureName: c, Value: 1.0})
		}
	}
	return ret
}

// Labels returns the labels of the value fixture: items 1,2 are labeled J1, items 3,4 J2.
func Labels() map[string]string {
	return map[string]string{"1": "J1", "2": "J1", "3": "J2", "4": "J2"}
}

// Labeled returns the value fixture with labels applied.
func Labeled(labels map[string]string) []Element {
	ret := Values()
	for i := range ret {
		ret[i].Label = labels[ret[i].ItemName]
	}
	return ret
}

// Adds turns elements into a batch of Add changes.
func Adds(elems ...Element) change.ChangeSet[string, Element] {
	cs := change.ChangeSet[string, Element]{}
	for _, e := range elems {
		cs = append(cs, change.NewAdd(e.Key(), e))
	}
	return cs
}

// Removes turns elements into a batch of Remove changes.
func Removes(elems ...Element) change.ChangeSet[string, Element] {
	cs := change.ChangeSet[string, Element]{}
	for _, e := range elems {
		cs = append(cs, change.NewRemove(e.Key(), e))
	}
	return cs
}

// Evaluates turns elements into a batch of Evaluate changes.
func Evaluates(elems ...Element) change.ChangeSet[string, Element] {
	cs := change.ChangeSet[string, Element]{}
	for _, e := range elems {
		cs = append(cs, change.NewEvaluate(e.Key(), e))
	}
	return cs
}
