package fetcher

// Page scripts evaluated inside the rendered profile. Each is a function
// expression passed to rod's Eval.

// profileReadyJS reports whether the profile header has rendered along with
// at least one of the metric links or header items.
const profileReadyJS = `() => {
	const nameBlock = document.querySelector('[data-testid="UserName"], [data-testid="User-Name"]');
	const hasFollowersLink = !!document.querySelector('a[href$="/followers"], a[href*="/verified_followers"]');
	const hasFollowingLink = !!document.querySelector('a[href$="/following"]');
	const hasJoin = !!document.querySelector('[data-testid="UserJoinDate"]');
	const hasLoc = !!document.querySelector('[data-testid="UserLocation"]');
	return !!nameBlock && (hasFollowersLink || hasFollowingLink || hasJoin || hasLoc);
}`

// rateProbeJS inspects navigation and resource timing for HTTP 429 and the
// visible text for a throttling notice.
const rateProbeJS = `() => {
	const nav = performance.getEntriesByType('navigation');
	const status = (nav && nav[0] && typeof nav[0].responseStatus === 'number') ? nav[0].responseStatus : null;
	const resources = performance.getEntriesByType('resource') || [];
	const res429 = resources.some(e => typeof e.responseStatus === 'number' && e.responseStatus === 429);
	const text = (document.body && document.body.innerText) ? document.body.innerText.slice(0, 4000) : '';
	const hint = /rate limit/i.test(text) || /HTTP-?429/i.test(text);
	return { status, res429, hint };
}`

// extractProfileJS reads the raw header texts for the handle passed as the
// first argument.
const extractProfileJS = `(targetKey) => {
	const out = { actualHandle: null, followersText: null, followingText: null, location: null, joinedText: null };

	const nameBlock = document.querySelector('[data-testid="UserName"], [data-testid="User-Name"]');
	if (nameBlock) {
		const spans = Array.from(nameBlock.querySelectorAll('span'));
		const handleSpan = spans.find(s => /^@[A-Za-z0-9_]{1,15}$/.test((s.textContent || '').trim()));
		out.actualHandle = handleSpan ? handleSpan.textContent.trim().replace(/^@/, '') : null;
	}

	const locEl = document.querySelector('[data-testid="UserLocation"] span span, [data-testid="UserLocation"] span');
	if (locEl) out.location = (locEl.textContent || '').trim() || null;

	const joinEl = document.querySelector('[data-testid="UserJoinDate"] span');
	if (joinEl) out.joinedText = (joinEl.textContent || '').trim() || null;

	const hk = String(targetKey || '').toLowerCase();
	const followingA = document.querySelector('a[href="/' + hk + '/following"]') ||
		document.querySelector('a[href$="/following"]');
	const followersA = document.querySelector('a[href="/' + hk + '/followers"]') ||
		document.querySelector('a[href="/' + hk + '/verified_followers"]') ||
		document.querySelector('a[href$="/followers"], a[href*="/verified_followers"]');

	const readCount = (a) => {
		if (!a) return null;
		const span = a.querySelector('span span') || a.querySelector('span');
		const t = ((span && span.textContent) || '').trim();
		return t || null;
	};
	out.followingText = readCount(followingA);
	out.followersText = readCount(followersA);
	return out;
}`
