package dev

import "strconv"

// ClientScript returns the JavaScript that reloads the page whenever the
// server announces a change on the given reload path. Pages include it with
//
//	<script src="/__reload.js"></script>
func ClientScript(reload string) string {
	return `(function() {
    'use strict';

    if (!window.EventSource) {
        return;
    }

    var source = new EventSource(` + strconv.Quote(reload) + `);

    source.onopen = function() {
        console.log('[serve-dev] Live reload connected');
    };

    source.onmessage = function(e) {
        console.log('[serve-dev] Changed:', e.data);
        location.reload();
    };
})();
`
}
